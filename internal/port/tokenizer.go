package port

// Tokenizer splits ticket text into normalized terms for feature hashing.
type Tokenizer interface {
	Tokenize(text string) []string
}
