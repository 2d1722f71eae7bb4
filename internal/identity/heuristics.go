package identity

import (
	"path/filepath"
	"regexp"
	"strings"
)

// quantTokens is the fixed list of known quantization labels matched against
// filenames, most specific first.
var quantTokens = []string{
	"Q4_K_M", "Q4_K_S", "Q5_K_M", "Q5_K_S", "Q6_K", "Q8_0", "Q4_0", "Q4_1",
	"Q5_0", "Q5_1", "Q3_K_M", "Q3_K_S", "Q3_K_L", "Q2_K",
	"BF16", "F16", "F32", "FP16", "8BIT", "4BIT", "8-BIT", "4-BIT",
}

// QuantLabel extracts a quantization label from a model filename, or
// "unknown" when no known token matches.
func QuantLabel(filename string) string {
	upper := strings.ToUpper(filepath.Base(filename))
	for _, tok := range quantTokens {
		if strings.Contains(upper, tok) {
			return strings.ReplaceAll(strings.ReplaceAll(tok, "-BIT", "bit"), "BIT", "bit")
		}
	}
	return "unknown"
}

// repoIDFromPath treats the two parent directories of a model file as
// "<family>/<modelName>" and returns it when it looks like a plausible
// upstream repository id.
func repoIDFromPath(modelPath string) (string, bool) {
	dir := filepath.Dir(modelPath)
	name := filepath.Base(dir)
	owner := filepath.Base(filepath.Dir(dir))
	if owner == "" || name == "" || owner == "." || name == "." ||
		owner == string(filepath.Separator) {
		return "", false
	}
	id := owner + "/" + name
	if !plausibleRepoID(id) {
		return "", false
	}
	return id, true
}

var repoIDPattern = regexp.MustCompile(`^[A-Za-z0-9][\w.-]*/[A-Za-z0-9][\w.-]*$`)

// plausibleRepoID filters out obviously non-hub directory pairs like
// "home/user" or "var/models".
func plausibleRepoID(id string) bool {
	if !repoIDPattern.MatchString(id) {
		return false
	}
	owner := id[:strings.Index(id, "/")]
	switch strings.ToLower(owner) {
	case "home", "users", "usr", "var", "opt", "tmp", "models", "data", "mnt", "srv":
		return false
	}
	return true
}

// packagingSuffixes are distribution-format markers appended to repo names by
// requantizers; stripping one yields a candidate base repository name.
var packagingSuffixes = []string{
	"-GGUF", "-gguf", "-GGML", "-MLX", "-mlx", "-AWQ", "-GPTQ", "-EXL2",
	"-4bit", "-8bit", "-bf16", "-fp16",
}

// knownDistributors maps requantizing owners to the canonical owner inferred
// from the model family prefix of the repository name.
var knownDistributors = map[string]bool{
	"mlx-community":      true,
	"TheBloke":           true,
	"bartowski":          true,
	"unsloth":            true,
	"lmstudio-community": true,
	"QuantFactory":       true,
	"mradermacher":       true,
}

// familyOwners maps a model-name prefix to the canonical upstream owner.
var familyOwners = []struct {
	prefix string
	owner  string
}{
	{"Llama", "meta-llama"},
	{"Meta-Llama", "meta-llama"},
	{"Mistral", "mistralai"},
	{"Mixtral", "mistralai"},
	{"Qwen", "Qwen"},
	{"Phi", "microsoft"},
	{"phi", "microsoft"},
	{"gemma", "google"},
	{"Gemma", "google"},
	{"TinyLlama", "TinyLlama"},
	{"DeepSeek", "deepseek-ai"},
	{"SmolLM", "HuggingFaceTB"},
	{"OLMo", "allenai"},
}

// inferBaseRepo derives the upstream base repository from a distributor
// repository id using naming conventions: strip a packaging suffix, then
// remap a known distributor owner to the family's canonical owner.
// Returns "" when no convention applies.
func inferBaseRepo(repoID string) string {
	slash := strings.Index(repoID, "/")
	if slash < 0 {
		return ""
	}
	owner, name := repoID[:slash], repoID[slash+1:]

	stripped := name
	for _, suffix := range packagingSuffixes {
		if strings.HasSuffix(stripped, suffix) {
			stripped = strings.TrimSuffix(stripped, suffix)
			break
		}
	}
	// quant tokens also show up as name suffixes, e.g. "...-Q4_K_M"
	for _, tok := range quantTokens {
		for _, cand := range []string{"-" + tok, "-" + strings.ToLower(tok)} {
			if strings.HasSuffix(stripped, cand) {
				stripped = strings.TrimSuffix(stripped, cand)
			}
		}
	}

	if !knownDistributors[owner] {
		if stripped != name {
			// unknown owner but a packaging suffix was present: assume the
			// owner republishes their own base model
			return owner + "/" + stripped
		}
		return ""
	}
	for _, fo := range familyOwners {
		if strings.HasPrefix(stripped, fo.prefix) {
			return fo.owner + "/" + stripped
		}
	}
	return ""
}
