package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument    = 1000
	ErrCodeRequestTooLarge    = 1002
	ErrCodeInvalidQuery       = 1003
	ErrCodeInvalidID          = 1004
	ErrCodeMissingRequired    = 1009
	ErrCodeInvalidUpload      = 1015
	ErrCodeUnsupportedMedia   = 1016
	ErrCodeInvalidMultipart   = 1017
	ErrCodeUploadSizeExceeded = 1018

	// Domain state (2xxx)
	ErrCodePhotoNotFound = 2001
	ErrCodeBlobNotFound  = 2003
	ErrCodePhotoIDExists = 2101

	// Auth & limits (3xxx)
	ErrCodeForbidden = 3002

	// Internal/system (4xxx)
	ErrCodeInternal           = 4001
	ErrCodeStoreFailure       = 4002
	ErrCodeStorageWriteFailed = 4006
	ErrCodeCatalogWriteFailed = 4007
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodePhotoNotFound
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
