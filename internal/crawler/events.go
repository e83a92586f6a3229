package crawler

// Stage is one step of the crawl progress stream. The set is closed;
// transports serialize events however they like (the HTTP layer uses
// SSE) but the stages and their percentages are fixed here.
type Stage string

const (
	StageInitializing Stage = "initializing"
	StageCacheCheck   Stage = "cache_check"
	StageCacheHit     Stage = "cache_hit"
	StageChatCreated  Stage = "chat_created"
	StageScraping     Stage = "scraping"
	StageScraped      Stage = "scraped"
	StageStoring      Stage = "storing"
	StageStored       Stage = "stored"
	StageEmbedding    Stage = "embedding"
	StageEmbedded     Stage = "embedded"
	StageSummarizing  Stage = "summarizing"
	StageComplete     Stage = "complete"
	StageError        Stage = "error"
)

var stageProgress = map[Stage]int{
	StageInitializing: 0,
	StageCacheCheck:   5,
	StageCacheHit:     30,
	StageChatCreated:  10,
	StageScraping:     20,
	StageScraped:      40,
	StageStoring:      50,
	StageStored:       60,
	StageEmbedding:    70,
	StageEmbedded:     80,
	StageSummarizing:  90,
	StageComplete:     100,
	StageError:        100,
}

// Progress returns the percentage a stage reports on the event stream.
func (s Stage) Progress() int { return stageProgress[s] }

// Event is one progress record emitted during a crawl request.
type Event struct {
	Stage    Stage          `json:"stage"`
	Message  string         `json:"message"`
	Progress int            `json:"progress"`
	Data     map[string]any `json:"data,omitempty"`
}

// EmitFunc receives events in stage order. A nil EmitFunc is valid and
// drops events.
type EmitFunc func(Event)

func emit(fn EmitFunc, stage Stage, message string, data map[string]any) {
	if fn == nil {
		return
	}
	fn(Event{Stage: stage, Message: message, Progress: stage.Progress(), Data: data})
}
