package util

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/lectern-sync/lectern/pkg/errors"
)

// HandleFatalError prints the friendliest available form of err and exits
// with a non-zero status.
func HandleFatalError(err error) {
	fmt.Fprintln(os.Stderr, errors.GetPrintableMessage(err))
	os.Exit(1)
}

// HandlePanic converts a panic into an error message rather than a raw
// stack trace for the user. It should be deferred at the top of main.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("panic", r).Error(
			"Lectern crashed. This is a bug -- please report it.")
		os.Exit(1)
	}
}

// PromptYesOrNo asks the user a yes/no question on stdin and keeps asking
// until it gets an answer it understands.
func PromptYesOrNo(question string) (bool, error) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s (y/n) ", question)

		response, err := reader.ReadString('\n')
		if err != nil {
			return false, errors.WithContext(err, "read response")
		}

		switch strings.ToLower(strings.TrimSpace(response)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Println("Please answer y or n.")
	}
}
