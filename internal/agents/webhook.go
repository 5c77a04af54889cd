package agents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-a2a-go/auth"

	"github.com/tuannvm/sprint-report/internal/common"
	"github.com/tuannvm/sprint-report/internal/jira"
	log "github.com/tuannvm/sprint-report/internal/logging"
)

const maxWebhookBody = 1 << 20

// WebhookHandler turns Jira sprint_closed webhooks into report runs.
type WebhookHandler struct {
	generate GenerateFunc
	// base is the parent context of background report runs.
	base context.Context

	wg sync.WaitGroup
}

// NewWebhookHandler creates a handler whose report runs are cancelled with base.
func NewWebhookHandler(base context.Context, generate GenerateFunc) *WebhookHandler {
	return &WebhookHandler{generate: generate, base: base}
}

// ServeHTTP processes Jira webhook requests
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := fmt.Sprintf("req-%d", start.UnixNano())
	log.Debugf("[%s] Received webhook request from %s", requestID, r.RemoteAddr)

	if r.Method != http.MethodPost {
		log.Warnf("[%s] Method not allowed: %s", requestID, r.Method)
		common.ReturnJSONError(w, http.StatusMethodNotAllowed, "Method not allowed: Only POST requests are accepted")
		return
	}

	if contentType := r.Header.Get("Content-Type"); !strings.Contains(contentType, "application/json") {
		log.Warnf("[%s] Invalid content type: %s", requestID, contentType)
		common.ReturnJSONError(w, http.StatusUnsupportedMediaType, "Content type must be application/json")
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		common.ReturnJSONError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}
	if len(body) == 0 {
		common.ReturnJSONError(w, http.StatusBadRequest, "Request body cannot be empty")
		return
	}

	if !jira.IsSprintWebhook(body) {
		log.Warnf("[%s] Payload is not a sprint webhook (%d bytes)", requestID, len(body))
		common.ReturnJSONError(w, http.StatusBadRequest, "Payload is not a Jira sprint webhook")
		return
	}

	req, err := common.RequestFromJSON(body)
	if errors.Is(err, common.ErrNotReportTrigger) {
		log.Infof("[%s] Ignoring webhook: %v", requestID, err)
		common.ReturnJSON(w, http.StatusOK, map[string]any{
			"status":    "ignored",
			"requestId": requestID,
		})
		return
	}
	if err != nil {
		log.Warnf("[%s] Invalid sprint webhook: %v", requestID, err)
		common.ReturnJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Infof("[%s] Sprint %d (%s) closed, starting report", requestID, req.SprintID, req.SprintName)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.generate(h.base, req); err != nil {
			log.Errorf("[%s] Report for sprint %d failed: %v", requestID, req.SprintID, err)
		}
	}()

	common.ReturnJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"sprintId":  req.SprintID,
		"requestId": requestID,
	})
	log.Debugf("[%s] Webhook processed in %v", requestID, time.Since(start))
}

// Wait blocks until every report started by the handler has finished.
func (h *WebhookHandler) Wait() {
	h.wg.Wait()
}

// StartWebhookServer serves the handler on addr at /webhook until ctx is
// done, then waits for in-flight reports.
func StartWebhookServer(ctx context.Context, addr string, h *WebhookHandler, provider auth.Provider) error {
	router := http.NewServeMux()
	router.Handle("/webhook", common.AuthMiddleware(provider, h))

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting webhook server on %s/webhook", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Webhook server shutdown: %v", err)
	}
	h.Wait()
	return nil
}
