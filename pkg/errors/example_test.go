// Package errors provides examples of structured error handling in deltashare.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/deltashare/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	err := errors.New(errors.ErrorTypeUnsupportedVersion, "table requires reader version 3").
		WithDetail("min_reader_version", 3)

	fmt.Println(err.Error())

	// Output:
	// unsupported_version: table requires reader version 3
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeTransport, "failed to read response body").
		WithDetail(errors.DetailURL, "https://sharing.example.com/delta-sharing/shares")

	if errors.IsType(err, errors.ErrorTypeTransport) {
		fmt.Println("transport error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("caused by unexpected EOF")
	}

	// Output:
	// transport error
	// caused by unexpected EOF
}

// ExampleStatusCode shows how the HTTP status survives wrapping.
func ExampleStatusCode() {
	notFound := errors.New(errors.ErrorTypeNotFound, "all-tables endpoint not supported").
		WithDetail(errors.DetailStatusCode, 404)
	err := errors.Wrap(notFound, errors.ErrorTypeInternal, "listing failed")

	code, ok := errors.StatusCode(err)
	fmt.Println(code, ok, errors.IsNotFound(err))

	// Output:
	// 404 true true
}
