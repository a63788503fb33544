package ftpconn

import "fmt"

// ProtocolError is a negative reply to a command, with the full
// command/response context for diagnostics.
type ProtocolError struct {
	// Command is the command verb that was sent (e.g. "STOR").
	Command string

	// Response is the reply text from the server.
	Response string

	// Code is the numeric reply code (e.g. 550).
	Code int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

func newProtocolError(command string, resp *Response) *ProtocolError {
	return &ProtocolError{
		Command:  command,
		Response: resp.Message,
		Code:     resp.Code,
	}
}
