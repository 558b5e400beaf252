package core

// # Error Codes Reference
//
// This file maps technical errors to operator-facing messages with codes.
// The code is logged next to the raw error so a failed run can be triaged
// from the log alone.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this key already exists
//	        SQLSTATE 23505, patterns "duplicate key", "duplicate entry", "unique constraint"
//	DB003 - Foreign key: Referenced record does not exist
//	        SQLSTATE 23503, patterns "foreign key"
//	DB004 - Connection refused: Unable to connect to database
//	        SQLSTATE class 08, patterns "connection refused", "no such host"
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Database operation timed out
//	DB007 - Deadlock or serialization failure: SQLSTATE 40P01, 40001
//	DB008 - Not null / check violation: SQLSTATE 23502, 23514
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL002 - Invalid number
//	VAL003 - Required field is empty
//	VAL004 - Required column missing from header
//	VAL005 - Value longer than the column allows
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV
//	FILE003 - Invalid JSON
//	FILE004 - File not found
//	FILE005 - Empty file
//	FILE006 - Unsupported format
//
// # Batch Errors (LOAD001-LOAD099)
//
//	LOAD001 - Batch cancelled
//	LOAD002 - Batch exceeded LOAD_TIMEOUT
//
// # Fallback
//
//	ERR000 - Unexpected error: check the full error in the log

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// UserMessage is an operator-facing description of an error.
type UserMessage struct {
	Message string // What went wrong
	Action  string // What to do about it
	Code    string // Reference code for support
}

var (
	msgDuplicate = UserMessage{
		Message: "A record with this key already exists",
		Action:  "Check the unique constraints on the target tables",
		Code:    "DB001",
	}
	msgForeignKey = UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Check that customers and products were written before orders",
		Code:    "DB003",
	}
	msgConnRefused = UserMessage{
		Message: "Unable to connect to database",
		Action:  "Check DB_HOST, DB_PORT and that the database is running, then re-run",
		Code:    "DB004",
	}
	msgConnReset = UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Re-run the load; the batch was rolled back",
		Code:    "DB005",
	}
	msgDBTimeout = UserMessage{
		Message: "Database operation timed out",
		Action:  "Re-run the load; the batch was rolled back",
		Code:    "DB006",
	}
	msgDeadlock = UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Re-run the load; the batch was rolled back",
		Code:    "DB007",
	}
	msgConstraint = UserMessage{
		Message: "A value violates a column constraint",
		Action:  "Check the row named in the error for empty or out-of-range values",
		Code:    "DB008",
	}
	msgCancelled = UserMessage{
		Message: "The load was cancelled",
		Action:  "Re-run the load; nothing was written",
		Code:    "LOAD001",
	}
	msgDeadline = UserMessage{
		Message: "The load did not finish within LOAD_TIMEOUT",
		Action:  "Raise LOAD_TIMEOUT or split the file, then re-run",
		Code:    "LOAD002",
	}
)

// sqlStateMessages maps exact SQLSTATE codes.
var sqlStateMessages = map[string]UserMessage{
	"23505": msgDuplicate,
	"23503": msgForeignKey,
	"23502": msgConstraint,
	"23514": msgConstraint,
	"22001": {
		Message: "A value is too long for its column",
		Action:  "Shorten the value or widen the column",
		Code:    "VAL005",
	},
	"40P01": msgDeadlock,
	"40001": msgDeadlock,
	"57014": msgDBTimeout,
}

// errorPattern maps an error substring to a user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are checked in order, first match wins.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Batch Errors
	// =========================================================================
	{pattern: "context canceled", msg: msgCancelled},
	{pattern: "context deadline exceeded", msg: msgDeadline},

	// =========================================================================
	// Database Constraint Errors
	// =========================================================================
	{pattern: "duplicate key", msg: msgDuplicate},
	{pattern: "duplicate entry", msg: msgDuplicate},
	{pattern: "unique constraint", msg: msgDuplicate},
	{pattern: "foreign key", msg: msgForeignKey},
	{pattern: "not null constraint", msg: msgConstraint},

	// =========================================================================
	// Database Connection Errors
	// =========================================================================
	{pattern: "connection refused", msg: msgConnRefused},
	{pattern: "no such host", msg: msgConnRefused},
	{pattern: "connection reset", msg: msgConnReset},
	{pattern: "broken pipe", msg: msgConnReset},
	{pattern: "deadlock", msg: msgDeadlock},
	{pattern: "timeout", msg: msgDBTimeout},

	// =========================================================================
	// File Errors
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Raise LOAD_MAX_FILE_SIZE or split the file",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "The CSV file could not be parsed",
			Action:  "Check quoting around the items column",
			Code:    "FILE002",
		},
	},
	{
		pattern: "parse json",
		msg: UserMessage{
			Message: "The JSON file could not be parsed",
			Action:  "Use one object per line or a single top-level array",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "The input file does not exist",
			Action:  "Check the path passed to the load command",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The input file contains no rows",
			Action:  "Check that the export completed",
			Code:    "FILE005",
		},
	},
	{
		pattern: "unsupported format",
		msg: UserMessage{
			Message: "The input format is not supported",
			Action:  "Use a .csv or .json/.jsonl file, or pass --format",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Validation Errors
	// =========================================================================
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Fix the value named in the error, or load with --lenient to drop bad items",
			Code:    "VAL002",
		},
	},
	{
		pattern: "is required",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure every row has order_uuid and customer_email",
			Code:    "VAL003",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from the file",
			Action:  "Check the header row for order_uuid and customer_email",
			Code:    "VAL004",
		},
	},
	{
		pattern: "must be at least",
		msg: UserMessage{
			Message: "An item has an out-of-range value",
			Action:  "Fix the item named in the error, or load with --lenient to drop bad items",
			Code:    "VAL002",
		},
	},
	{
		pattern: "must not be negative",
		msg: UserMessage{
			Message: "An item has an out-of-range value",
			Action:  "Fix the item named in the error, or load with --lenient to drop bad items",
			Code:    "VAL002",
		},
	},
	{
		pattern: "longer than",
		msg: UserMessage{
			Message: "A value is too long for its column",
			Action:  "Shorten the value named in the error",
			Code:    "VAL005",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the full error in the log",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator-facing message.
// Postgres errors are matched on SQLSTATE first; everything else is matched
// against known patterns (case-insensitive). Unknown errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := sqlStateMessages[pgErr.Code]; ok {
			return msg
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return msgConnRefused
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsTransient reports whether err looks like a temporary condition, so that
// re-running the same file is expected to succeed. Data and constraint errors
// are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case strings.HasPrefix(pgErr.Code, "53"):
			return true
		case pgErr.Code == "57P03":
			return true
		default:
			return false
		}
	}

	var verr ValidationError
	if errors.As(err, &verr) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no connection",
		"timeout",
		"deadlock",
		"database is locked",
		"too many connections",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
