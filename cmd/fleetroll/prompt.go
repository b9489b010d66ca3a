package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// confirm reads a single line from in and reports whether it is "y" or
// "Y" — any other response, including an empty line, aborts, matching the
// source tool's "anything but y is a no" prompt semantics.
func confirm(in io.Reader, prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false, scanner.Err()
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y", nil
}

// readLine reads a single line of free-form input from in, used for the
// host-selection expression.
func readLine(in io.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimSpace(scanner.Text()), nil
}
