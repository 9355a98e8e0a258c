package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultPage    = 1
	defaultPerPage = 10
	maxPerPage     = 1000

	// Never matches a dateOfSale month, so statistics come back empty.
	noMonth = 0
)

var errMissing = errors.New("missing")

func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errMissing
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	return n, nil
}

func parsePositive(name, raw string) (int, error) {
	n, err := parseInt(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s: %d is less than 1", name, n)
	}
	return n, nil
}

func parsePage(raw string) (int, error) {
	return parsePositive("page", raw)
}

// parsePerPage clamps large values to maxPerPage.
func parsePerPage(raw string) (int, error) {
	n, err := parsePositive("perPage", raw)
	if err != nil {
		return 0, err
	}
	return min(n, maxPerPage), nil
}

// parseMonth accepts any integer. Values outside 1-12 are passed through
// and simply select no records.
func parseMonth(raw string) (int, error) {
	n, err := parseInt(raw)
	if err != nil {
		return 0, fmt.Errorf("month: %w", err)
	}
	return n, nil
}
