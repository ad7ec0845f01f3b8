// Command contentsync runs the batch jobs that reconcile page files with the
// document store.
package main

import (
	"os"

	"github.com/siteadmin/content-services/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
