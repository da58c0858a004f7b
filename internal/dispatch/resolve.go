package dispatch

import "strings"

// ErrModelNotFound indicates the requested chat model doesn't match a
// configured alias and isn't a recognized remote-model name either.
type ErrModelNotFound struct {
	Model     string
	Available []string
}

func (e *ErrModelNotFound) Error() string {
	return "model '" + e.Model + "' not found. Available: " + strings.Join(e.Available, ", ")
}

// remoteModelHints are substrings in a requested chat model name that
// indicate the caller is pointing at a well-known remote model and should
// be redirected to the fast local VLM instead of rejected outright.
var remoteModelHints = []string{"gpt", "claude"}

// ResolveChatAlias implements the /chat/completions alias rule: use the
// requested model if it's a known alias; else, if the name looks like a
// remote model name, redirect to vlm-fast; else report not-found.
func ResolveChatAlias(cat Catalog, requestedModel string) (string, error) {
	if cat.Has(requestedModel) {
		return requestedModel, nil
	}

	lower := strings.ToLower(requestedModel)
	for _, hint := range remoteModelHints {
		if strings.Contains(lower, hint) {
			if cat.Has("vlm-fast") {
				return "vlm-fast", nil
			}
			break
		}
	}

	return "", &ErrModelNotFound{Model: requestedModel, Available: cat.List()}
}

// ResolveImageAlias implements the fixed image-gen alias rule for both
// generations and edits.
func ResolveImageAlias(cat Catalog) (string, bool) {
	const alias = "image-gen"
	return alias, cat.Has(alias)
}

// analyzeBestTasks are the vision-analyze tasks routed to the higher
// quality model when available.
var analyzeBestTasks = map[string]bool{
	"analyze":  true,
	"describe": true,
}

// ResolveAnalyzeAlias implements the /vision/analyze routing rule:
// vlm-best for comprehensive tasks, vlm-fast otherwise, falling back to the
// first configured VLM (never a non-VLM alias such as image-gen).
func ResolveAnalyzeAlias(cat Catalog, task string) (string, bool) {
	preferred := "vlm-fast"
	if analyzeBestTasks[task] {
		preferred = "vlm-best"
	}
	if cat.Has(preferred) {
		return preferred, true
	}
	if cat.Has("vlm-fast") {
		return "vlm-fast", true
	}
	for _, alias := range cat.List() {
		if cat.IsVLM(alias) {
			return alias, true
		}
	}
	return "", false
}
