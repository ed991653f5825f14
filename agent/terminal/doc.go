// Package terminal is the interactive line-based front end for the agent.
//
// Each non-empty input line is one agent turn. The answer is printed after an
// "Agent response:" header. When the model answers with the farewell "bye"
// the terminal prints "Bye!" and Run returns ErrFarewell so the caller can
// exit. Inference failures are printed as a one-line "Error: ..." and the
// session continues. End of input, /quit and /exit end the session cleanly.
//
// Tool activity is shown according to the agent's verbosity:
//
//   - None: nothing
//   - Info: tool names when called
//   - All: tool names, arguments and results
//
// In prompt mode every tool call is confirmed on the input stream first.
package terminal
