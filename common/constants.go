package common

const (
	// AppName is the name of the application
	AppName = "career-crawler-service"
)

// Subjects consumed by the workers, one per worker mode.
const (
	SubjectAnalyse = "company_jobs.analyse"
	SubjectCheck   = "company_jobs.check"

	// StreamName holds both subjects.
	StreamName = "COMPANY_JOBS"
)

// Dead letter subjects receive sessions that failed too many times.
const (
	DeadLetterAnalyser = "dead_letter.analyser_companies"
	DeadLetterChecker  = "dead_letter.checker_jobs"

	DeadLetterStream = "DEAD_LETTER"
)

// Session key prefixes of the Redis session hashes.
const (
	AnalyserSessionPrefix = "company_jobs:"
	CheckerSessionPrefix  = "check_jobs:"
)
