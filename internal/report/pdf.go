package report

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	log "github.com/tuannvm/sprint-report/internal/logging"
)

// PDFRenderer turns a rendered HTML page into a PDF file.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html, path string) error
}

// BrowserPDF prints HTML to PDF through a headless Chromium.
type BrowserPDF struct {
	// ControlURL connects to an already running browser. Empty launches one.
	ControlURL string
}

// RenderPDF implements PDFRenderer.
func (b *BrowserPDF) RenderPDF(ctx context.Context, html, path string) error {
	controlURL := b.ControlURL
	launched := controlURL == ""
	if launched {
		l := launcher.New().Context(ctx).Headless(true)
		defer l.Cleanup()
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	} else {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return fmt.Errorf("failed to resolve browser url: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	if launched {
		defer func() {
			if err := browser.Close(); err != nil {
				log.Debugf("Closing browser: %v", err)
			}
		}()
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer func() { _ = page.Close() }()
	if err := page.SetDocumentContent(html); err != nil {
		return fmt.Errorf("failed to load report html: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for page load: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return fmt.Errorf("failed to print pdf: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return fmt.Errorf("failed to read pdf stream: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}

	log.Infof("Generated PDF: %s (%d bytes)", path, len(data))
	return nil
}
