package extraction

import (
	"strings"
	"unicode/utf8"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

const (
	fastMinConfidence = 60.0
	fastMinLength     = 100

	accurateRatio        = 0.8
	accurateRelaxedRatio = 0.5

	highConfidence   = 80.0
	mediumConfidence = 60.0
)

// AcceptFast reports whether fast OCR output is good enough to stop there.
func AcceptFast(r StrategyResult) bool {
	return r.Err == nil && r.HasConfidence && r.Confidence >= fastMinConfidence && r.Length() > fastMinLength
}

// ShouldRun decides whether the strategy for method still needs to run given
// the results collected so far.
func ShouldRun(method models.ExtractionMethod, done map[models.ExtractionMethod]StrategyResult) bool {
	switch method {
	case models.MethodFastOCR:
		return true
	case models.MethodAccurateOCR:
		return !AcceptFast(done[models.MethodFastOCR])
	case models.MethodRescueRender:
		return !SelectOCR(done[models.MethodFastOCR], done[models.MethodAccurateOCR]).Succeeded()
	default:
		return false
	}
}

// SelectOCR picks between fast and accurate output. Accurate wins unless it
// is markedly shorter than fast; the bar drops when fast confidence was weak.
func SelectOCR(fast, accurate StrategyResult) StrategyResult {
	fastOK, accurateOK := fast.Succeeded(), accurate.Succeeded()
	switch {
	case fastOK && accurateOK:
		ratio := accurateRatio
		if fast.HasConfidence && fast.Confidence < fastMinConfidence {
			ratio = accurateRelaxedRatio
		}
		if float64(accurate.Length()) >= ratio*float64(fast.Length()) {
			return accurate
		}
		return fast
	case accurateOK:
		return accurate
	case fastOK:
		return fast
	default:
		return StrategyResult{}
	}
}

// BestOCR applies SelectOCR and falls back to the rescue result.
func BestOCR(done map[models.ExtractionMethod]StrategyResult) StrategyResult {
	best := SelectOCR(done[models.MethodFastOCR], done[models.MethodAccurateOCR])
	if best.Succeeded() {
		return best
	}
	if rescue := done[models.MethodRescueRender]; rescue.Succeeded() {
		return rescue
	}
	return StrategyResult{}
}

// FinalChoice is the text kept after comparing OCR with the native layer.
type FinalChoice struct {
	Text       string
	Method     models.ExtractionMethod
	Confidence *float64
	Pages      int
}

// SelectFinal keeps OCR output only if it is not shorter than the native
// text; otherwise the native text survives, flagged so callers know OCR ran.
func SelectFinal(native string, ocr StrategyResult) FinalChoice {
	native = strings.TrimSpace(native)
	if ocr.Succeeded() && ocr.Length() >= utf8.RuneCountInString(native) {
		choice := FinalChoice{Text: ocr.Text, Method: ocr.Method, Pages: ocr.Pages}
		if ocr.HasConfidence {
			conf := ocr.Confidence
			choice.Confidence = &conf
		}
		return choice
	}
	if native == "" {
		return FinalChoice{Method: models.MethodFailed}
	}
	return FinalChoice{Text: native, Method: models.MethodNativeOCRInsufficient}
}

// QualityTierFor grades extraction trust from origin and OCR confidence.
func QualityTierFor(scanned bool, confidence *float64) models.QualityTier {
	switch {
	case !scanned:
		return models.QualityHigh
	case confidence == nil:
		return models.QualityMedium
	case *confidence >= highConfidence:
		return models.QualityHigh
	case *confidence >= mediumConfidence:
		return models.QualityMedium
	default:
		return models.QualityLow
	}
}

// RecommendedEngine names the engine a re-run should start with.
func RecommendedEngine(method models.ExtractionMethod, tier models.QualityTier) string {
	switch {
	case method == models.MethodNative:
		return string(models.MethodNative)
	case method == models.MethodNativeOCRInsufficient, method == models.MethodFailed:
		return string(models.MethodAccurateOCR)
	case tier == models.QualityLow:
		return string(models.MethodAccurateOCR)
	default:
		return string(method)
	}
}
