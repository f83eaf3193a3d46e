package connectors

import (
	"fmt"
	"net/http"
)

// ExchangeErrorCodes maps Binance-style error codes to human-readable names.
var ExchangeErrorCodes = map[int]string{
	-1000: "UNKNOWN",                  // Unknown error while processing the request
	-1001: "DISCONNECTED",             // Internal error; unable to process your request
	-1003: "TOO_MANY_REQUESTS",        // Too many requests queued / request weight exceeded
	-1006: "UNEXPECTED_RESP",          // Unexpected response from the message bus
	-1007: "TIMEOUT",                  // Timeout waiting for response from backend server
	-1013: "INVALID_MESSAGE",          // Filter failure, e.g. LOT_SIZE or PRICE_FILTER
	-1015: "TOO_MANY_ORDERS",          // Too many new orders
	-1021: "INVALID_TIMESTAMP",        // Timestamp outside of recvWindow
	-1022: "INVALID_SIGNATURE",        // Signature for this request is not valid
	-1100: "ILLEGAL_CHARS",            // Illegal characters found in a parameter
	-1102: "MANDATORY_PARAM_MISSING",  // Mandatory parameter missing or malformed
	-1121: "BAD_SYMBOL",               // Invalid symbol
	-2010: "NEW_ORDER_REJECTED",       // e.g. insufficient balance
	-2014: "BAD_API_KEY_FMT",          // API-key format invalid
	-2015: "REJECTED_MBX_KEY",         // Invalid API-key, IP, or permissions for action
	-2019: "MARGIN_NOT_SUFFICIENT",    // Margin is insufficient
}

// GetErrorMsg returns a human-readable message for a given exchange error code.
// If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code int) string {
	if msg, ok := ExchangeErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_EXCHANGE_ERROR_%d", code)
}

// classify maps an HTTP status and exchange code onto an error class.
func classify(status, code int) error {
	switch code {
	case -1022, -2014, -2015:
		return ErrAuth
	case -1003, -1015:
		return ErrRateLimited
	case -1001, -1006, -1007, -1021:
		return ErrUnavailable
	case -1013, -1100, -1102, -1121, -2010, -2019:
		return ErrRejected
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests || status == 418:
		return ErrRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}
