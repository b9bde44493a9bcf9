package slack

// Export internal functions and types for testing
var (
	TestWithCacheTTL = WithCacheTTL
	SubjectNotice    = subjectNotice
)
