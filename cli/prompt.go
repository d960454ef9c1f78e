package cli

import (
	"errors"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
)

var errEmpty = errors.New("you must enter something")

func nonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errEmpty
	}

	return nil
}

// PromptConfirm asks a yes/no question. Answering no is not an error.
func PromptConfirm(label string, stdin io.ReadCloser, stdout io.WriteCloser) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     stdin,
		Stdout:    stdout,
	}

	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func promptString(label string, stdin io.ReadCloser, stdout io.WriteCloser) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Validate: nonEmpty,
		Stdin:    stdin,
		Stdout:   stdout,
	}

	value, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return "", ErrQuit
		}

		return "", err
	}

	return strings.TrimSpace(value), nil
}
