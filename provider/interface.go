// Package provider connects chatdesk to AI model vendors.
//
// chatdesk supports several vendors (Anthropic, OpenAI, OpenRouter, DeepSeek,
// local Ollama) behind the model.ChatService and model.ModelService
// interfaces, so the store and orchestrator stay vendor-agnostic.
//
// # Architecture
//
//   - registry.go holds the static vendor catalog
//   - request.go builds the vendor-neutral request (system prompt, truncated
//     history, tool results) every adapter starts from
//   - anthropic.go and openai.go use the official SDKs
//   - openrouter.go speaks the OpenAI-compatible SSE format directly and
//     serves OpenRouter and DeepSeek
//   - ollama.go uses the Ollama API client
//   - models.go lists live models per vendor
//   - factory.go maps provider ids to adapters
//
// # Streaming
//
// StreamMessage returns an iter.Seq of model.StreamEvent. Every adapter goes
// through newStream, which guarantees one Started event first and exactly one
// Finished or Failed at the end, unless the context is cancelled, in which
// case the sequence ends silently and the transport is released.
//
// # Usage
//
//	chats := provider.NewDefaultChatServiceFactory(nil)
//	if err := chats.Validate(provider.Catalog()); err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := chats.Get("anthropic")
//	if err != nil {
//	    // *model.UnsupportedProviderError
//	}
//	for ev := range svc.StreamMessage(ctx, messages, opts) {
//	    fmt.Print(ev.Delta)
//	}
package provider
