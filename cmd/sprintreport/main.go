// sprintreport generates written sprint reports from Jira sprint data and
// recorded meeting summaries.
package main

import "os"

func main() {
	os.Exit(Execute())
}
