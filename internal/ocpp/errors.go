package ocpp

// ErrorCode is the closed set of OCPP-J RPC error codes. Each code carries a
// fixed human-readable description used verbatim in CallError frames.
type ErrorCode string

const (
	FormatViolation               ErrorCode = "FormatViolation"
	GenericError                  ErrorCode = "GenericError"
	InternalError                 ErrorCode = "InternalError"
	MessageTypeNotSupported       ErrorCode = "MessageTypeNotSupported"
	NotImplemented                ErrorCode = "NotImplemented"
	NotSupported                  ErrorCode = "NotSupported"
	OccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	PropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	ProtocolError                 ErrorCode = "ProtocolError"
	RpcFrameworkError             ErrorCode = "RpcFrameworkError"
	SecurityError                 ErrorCode = "SecurityError"
	TypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
)

var errorDescriptions = map[ErrorCode]string{
	FormatViolation:               "Payload for Action is syntactically incorrect or not conform the PDU structure for Action",
	GenericError:                  "Any other error not covered by the previous ones",
	InternalError:                 "An internal error occurred and the receiver was not able to process the requested Action successfully",
	MessageTypeNotSupported:       "A message with an Message Type Number received that is not supported by this implementation",
	NotImplemented:                "Requested Action is not known by receiver",
	NotSupported:                  "Requested Action is recognized but not supported by the receiver",
	OccurrenceConstraintViolation: "Payload for Action is syntactically correct but at least one of the fields violates occurrence constraints",
	PropertyConstraintViolation:   "Payload is syntactically correct but at least one field contains an invalid value",
	ProtocolError:                 "Payload for Action is incomplete",
	RpcFrameworkError:             "Content of the call is not a valid RPC Request, for example: MessageId could not be read",
	SecurityError:                 "During the processing of Action a security issue occurred preventing receiver from completing the Action successfully",
	TypeConstraintViolation:       "Payload for Action is syntactically correct but at least one of the fields violates data type constraints",
}

// Description returns the fixed text bound to the code. Unknown codes get the
// GenericError description.
func (c ErrorCode) Description() string {
	if d, ok := errorDescriptions[c]; ok {
		return d
	}
	return errorDescriptions[GenericError]
}

// Valid reports whether c is one of the defined codes.
func (c ErrorCode) Valid() bool {
	_, ok := errorDescriptions[c]
	return ok
}
