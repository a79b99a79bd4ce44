package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyTasks is returned when a user already has the maximum number of running tasks.
	ErrTooManyTasks = errors.New("too many concurrent tasks")
	// ErrInvalidURL is returned for start URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrServiceBusy is returned when the background pool cannot accept more work.
	ErrServiceBusy = errors.New("service busy")
)

// AdmissionError reports a rejected StartCrawl. It matches ErrTooManyTasks.
type AdmissionError struct {
	UserID string
	Limit  int
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf(
		"Maximum concurrent scraping tasks (%d) reached. Please wait for some tasks to complete.",
		e.Limit,
	)
}

// Unwrap lets errors.Is match ErrTooManyTasks.
func (e *AdmissionError) Unwrap() error {
	return ErrTooManyTasks
}
