package link

// Code is the closed set of results returned across the vendor call
// boundary. Every non-success Code is an error, so callers can use
// errors.Is(err, link.ErrTimeout) on anything the Gateway returns.
type Code int

const (
	Success Code = iota
	// NotInitialised means the link was used before Open or after Close.
	NotInitialised
	AlreadyInitialised
	InvalidHandle
	MaxSendersReached
	BadStreamType
	NotFound
	IncorrectSchema
	InvalidParameters
	BufferOverflow
	Timeout
	StreamsChanged
	IncompatibleVersion
	Unspecified
)

// Sentinel errors for errors.Is.
var (
	ErrNotInitialised      error = NotInitialised
	ErrAlreadyInitialised  error = AlreadyInitialised
	ErrInvalidHandle       error = InvalidHandle
	ErrMaxSendersReached   error = MaxSendersReached
	ErrBadStreamType       error = BadStreamType
	ErrNotFound            error = NotFound
	ErrIncorrectSchema     error = IncorrectSchema
	ErrInvalidParameters   error = InvalidParameters
	ErrBufferOverflow      error = BufferOverflow
	ErrTimeout             error = Timeout
	ErrStreamsChanged      error = StreamsChanged
	ErrIncompatibleVersion error = IncompatibleVersion
	ErrUnspecified         error = Unspecified
)

func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case NotInitialised:
		return "not_initialised"
	case AlreadyInitialised:
		return "already_initialised"
	case InvalidHandle:
		return "invalid_handle"
	case MaxSendersReached:
		return "max_senders_reached"
	case BadStreamType:
		return "bad_stream_type"
	case NotFound:
		return "not_found"
	case IncorrectSchema:
		return "incorrect_schema"
	case InvalidParameters:
		return "invalid_parameters"
	case BufferOverflow:
		return "buffer_overflow"
	case Timeout:
		return "timeout"
	case StreamsChanged:
		return "streams_changed"
	case IncompatibleVersion:
		return "incompatible_version"
	default:
		return "unspecified"
	}
}

func (c Code) Error() string {
	return "renderstream: " + c.String()
}

// Err converts c to an error, nil for Success.
func (c Code) Err() error {
	if c == Success {
		return nil
	}
	return c
}

// Category groups codes by how the caller is expected to react.
type Category int

const (
	// CategoryTransport errors skip the current tick; the next tick retries.
	CategoryTransport Category = iota
	// CategorySchema errors exclude the affected scene from being driven.
	CategorySchema
	// CategoryResource errors are fatal to a single stream.
	CategoryResource
	// CategoryUnknown covers Unspecified and codes outside the enumeration.
	CategoryUnknown
)

func (c Category) String() string {
	switch c {
	case CategoryTransport:
		return "transport"
	case CategorySchema:
		return "schema"
	case CategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Category classifies c.
func (c Code) Category() Category {
	switch c {
	case NotInitialised, AlreadyInitialised, InvalidHandle, Timeout, StreamsChanged, IncompatibleVersion:
		return CategoryTransport
	case IncorrectSchema, InvalidParameters, BufferOverflow, NotFound:
		return CategorySchema
	case MaxSendersReached, BadStreamType:
		return CategoryResource
	default:
		return CategoryUnknown
	}
}
