package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/pflag"
)

const (
	copyFlagName                = "copy"
	copyFlagDescription         = "copy the generated section to the system clipboard"
	clipboardWriteFailedMessage = "copy generated section to clipboard: %w"
	clipboardEmptyMessage       = "nothing to copy"
)

// clipboardWriter is swapped in tests; the default writes to the system clipboard.
type clipboardWriter func(text string) error

var writeClipboard clipboardWriter = clipboard.WriteAll

func registerCopyFlag(flagSet *pflag.FlagSet, target **bool) {
	registerOptionalBooleanFlag(flagSet, target, copyFlagName, copyFlagDescription)
}

// copyGenerated places the generated region, markers excluded, on the clipboard.
func copyGenerated(generated string, writer clipboardWriter) error {
	if writer == nil {
		writer = writeClipboard
	}
	text := strings.TrimSpace(generated)
	if text == "" {
		return fmt.Errorf(clipboardWriteFailedMessage, errors.New(clipboardEmptyMessage))
	}
	if err := writer(text + "\n"); err != nil {
		return fmt.Errorf(clipboardWriteFailedMessage, err)
	}
	return nil
}
