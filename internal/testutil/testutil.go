// Package testutil provides shared test utilities and EMG fixtures.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// LocalRequest creates a test HTTP request that appears to come from
// localhost, which tsweb's debug routes require.
func LocalRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// EMGLine formats one serial record the way the acquisition board sends it.
func EMGLine(values ...int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",") + "\n"
}

// ConstantEMG returns n identical records of the given channel values.
func ConstantEMG(n int, values ...int) []byte {
	return []byte(strings.Repeat(EMGLine(values...), n))
}

// RampEMG returns n records where every channel carries the record index
// offset by the channel number, handy for checking order and tail windows.
func RampEMG(n, channels int) []byte {
	var b strings.Builder
	values := make([]int, channels)
	for i := 0; i < n; i++ {
		for ch := range values {
			values[ch] = i + ch
		}
		b.WriteString(EMGLine(values...))
	}
	return []byte(b.String())
}
