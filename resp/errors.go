package resp

import "errors"

// ErrIncomplete means the buffer holds a truncated frame. Nothing was
// consumed; the caller reads more bytes and parses again.
var ErrIncomplete = errors.New("resp: incomplete frame")

var ErrHeaderlineTooLarge = errors.New("resp: value header too large")
var ErrIntegerParsing = errors.New("resp: integer malformed")
var ErrDoubleParsing = errors.New("resp: double malformed")
var ErrBooleanParsing = errors.New("resp: boolean malformed")
var ErrNoFinalRN = errors.New("resp: no final \\r\\n found for value")
var ErrUnknownHeaderType = errors.New("resp: unknown header type")
var ErrInvalidLength = errors.New("resp: negative length in header")
var ErrDepthExceeded = errors.New("resp: aggregate nesting too deep")
var ErrArgumentType = errors.New("resp: command argument type not supported")
var ErrEmptyCommand = errors.New("resp: command without name")
