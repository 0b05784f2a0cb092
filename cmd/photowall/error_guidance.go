package main

import (
	"context"
	"errors"
	"net"

	"photowall/internal/api"
)

// errCodeUploadTooLarge mirrors the server's upload size error code.
const errCodeUploadTooLarge = 1018

const (
	hintAdminKey     = "hint: pass --admin-key or set ADMIN_KEY to the server's admin key."
	hintUploadSize   = "hint: the file exceeds the server's uploads.max_bytes limit."
	hintServerFault  = "hint: server returned an internal error; check server logs for details."
	hintWrongTarget  = "hint: verify PHOTOWALL_API_URL points to a photowall server."
	hintTimeout      = "hint: request timed out; check server health or increase PHOTOWALL_HTTP_TIMEOUT."
	hintNoServer     = "hint: ensure a photowall server is running at PHOTOWALL_API_URL."
	hintStartService = "hint: start a local server with: photowall srv"
)

// formatCLIError renders err for stderr followed by any remediation hints.
func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}
	return append([]string{err.Error()}, errorHints(err)...)
}

func errorHints(err error) []string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch {
		case api.IsForbidden(err):
			return []string{hintAdminKey}
		case apiErr.ErrorCode == errCodeUploadTooLarge:
			return []string{hintUploadSize}
		case api.ServerFault(err):
			return []string{hintServerFault}
		case apiErr.Code == "":
			// Not a photowall error payload.
			return []string{hintWrongTarget}
		}
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return []string{hintTimeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return []string{hintNoServer, hintStartService}
	}
	return nil
}
