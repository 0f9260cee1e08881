// Package stream turns raw streaming bytes into semantic events.
//
// A Parser is fed chunks exactly as a transport delivers them. Chunks may end
// anywhere, including inside a line or inside a multi-byte character. The
// parser decides once whether the stream is framed (event:/data: lines, as
// served by an event-stream endpoint or a chunked body carrying the same
// lines) or raw text, and never revisits that decision:
//
//	p := stream.NewParser()
//	for chunk := range chunks {
//		for _, ev := range p.Feed(chunk) {
//			handle(ev)
//		}
//	}
//	for _, ev := range p.Finish() {
//		handle(ev)
//	}
//
// The parser emits at most one terminal event (Completed or ErrorEvent) and
// ignores all input after it. Payloads that cannot be decoded are never
// dropped; they are rendered as literal text.
package stream
