// Package generation is the client for the remote text-generation service.
//
// The service is the Gemini generateContent REST endpoint. A request carries a
// single prompt string and the reply is read from a fixed path in the
// response:
//
//	candidates[0].content.parts[0].text
//
// Prompts are composed by [ComposePrompt], which prepends the fixed system
// instruction to the user's text:
//
//	prompt := generation.ComposePrompt(generation.DefaultInstruction, "Hola")
//	resp, err := client.Generate(ctx, prompt)
//	text, ok := resp.ReplyText()
//
// Transport failures, non-2xx statuses and undecodable bodies are all returned
// as errors. Callers are not expected to tell them apart; [StatusError] exists
// for logging.
package generation
