// Package domain holds the types shared by the evaluation engine and its
// collaborators: annotations read from the corpus, score bundles, and the
// persisted evaluation result.
package domain

import "time"

// EvaluationType selects the evaluation strategy for a run.
type EvaluationType string

// Evaluation types.
const (
	EvaluationBinary     EvaluationType = "binary"
	EvaluationMultilabel EvaluationType = "multilabel"
	EvaluationEntity     EvaluationType = "entity"
)

// Average selects how per-class counts are combined into scalar metrics.
type Average string

// Average presets.
const (
	AverageBinary   Average = "binary"
	AverageMicro    Average = "micro"
	AverageMacro    Average = "macro"
	AverageSamples  Average = "samples"
	AverageWeighted Average = "weighted"
)

// EntityScoring selects how entity counters are produced.
type EntityScoring string

// Entity scoring modes.
const (
	EntityScoringToken EntityScoring = "token"
	EntityScoringValue EntityScoring = "value"
)

// Synthetic classes injected into the multilabel class universe.
const (
	MissingTrueLabel = "MISSING_TRUE_LABEL"
	MissingPredLabel = "MISSING_PRED_LABEL"
)

// Binary class labels.
const (
	NegativeLabel = "0"
	PositiveLabel = "1"
)

// NaNMarker replaces precision, recall and F1 when they are undefined.
const NaNMarker = -1.0

// Run status values written to the job tracker.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// IsSynthetic reports whether a class label is one of the injected placeholders.
func IsSynthetic(label string) bool {
	return label == MissingTrueLabel || label == MissingPredLabel
}

// EvaluationRun describes one requested evaluation.
type EvaluationRun struct {
	ID                   string
	Name                 string
	Type                 EvaluationType
	Query                string
	TrueFact             string
	TrueFactValue        string
	PredFact             string
	PredFactValue        string
	DocPath              string
	Average              Average
	AddIndividualResults bool
	ScrollSize           int
	EntityScoring        EntityScoring
	Status               string
	CreatedAt            time.Time
}

// ScoreBundle is the full metric set for one scoring call.
type ScoreBundle struct {
	Precision       float64                `json:"precision"`
	Recall          float64                `json:"recall"`
	F1              float64                `json:"f1_score"`
	Accuracy        float64                `json:"accuracy"`
	ConfusionMatrix [][]int                `json:"confusion_matrix"`
	PerClass        map[string]ScoreBundle `json:"individual_results,omitempty"`
}

// Clone returns a deep copy of the bundle.
func (b ScoreBundle) Clone() ScoreBundle {
	out := b
	out.ConfusionMatrix = CloneMatrix(b.ConfusionMatrix)

	if b.PerClass != nil {
		out.PerClass = make(map[string]ScoreBundle, len(b.PerClass))
		for k, v := range b.PerClass {
			out.PerClass[k] = v.Clone()
		}
	}

	return out
}

// CloneMatrix deep-copies a confusion matrix.
func CloneMatrix(m [][]int) [][]int {
	if m == nil {
		return nil
	}

	out := make([][]int, len(m))
	for i, row := range m {
		out[i] = append([]int(nil), row...)
	}

	return out
}

// ValueCount is one ledger entry keyed by a single value.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// OverlapCount is one ledger entry keyed by a true/predicted pair.
type OverlapCount struct {
	True  string `json:"true"`
	Pred  string `json:"pred"`
	Count int    `json:"count"`
}

// LedgerReport is the trimmed, serializable misclassification ledger.
type LedgerReport struct {
	Substrings     []OverlapCount `json:"substrings"`
	Superstrings   []OverlapCount `json:"superstrings"`
	Partial        []OverlapCount `json:"partial"`
	FalseNegatives []ValueCount   `json:"false_negatives"`
	FalsePositives []ValueCount   `json:"false_positives"`
}

// EvaluationResult is what the result sink persists.
type EvaluationResult struct {
	ScoreBundle

	Classes          []string      `json:"classes"`
	DocumentCount    int           `json:"document_count"`
	DocumentsSkipped int           `json:"documents_skipped"`
	TrueClassCount   int           `json:"n_true_classes"`
	PredClassCount   int           `json:"n_predicted_classes"`
	TP               int           `json:"tp"`
	TN               int           `json:"tn"`
	FP               int           `json:"fp"`
	FN               int           `json:"fn"`
	ScoresImprecise  bool          `json:"scores_imprecise"`
	ScoreAfterScroll bool          `json:"score_after_scroll"`
	Misclassified    *LedgerReport `json:"misclassified_examples,omitempty"`
}
