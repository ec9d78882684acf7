// Package physio carries the physiotherapy domain: the anatomy catalog that
// maps body-model mesh IDs to muscle groups, the assistant's tool set, and
// the system prompt with its per-patient context.
package physio

import (
	"sort"
	"strings"
)

// Conditions enumerates the states a muscle can be assessed as.
var Conditions = []string{
	"healthy", "tight", "knotted", "strained", "torn",
	"recovering", "inflamed", "weak", "fatigued",
}

// KnotTypes enumerates localized findings for add_knot.
var KnotTypes = []string{"trigger_point", "adhesion", "spasm"}

// groupPatterns maps each muscle group to lowercase substrings matched
// against mesh names (underscores normalized to spaces). A mesh may belong
// to several groups.
var groupPatterns = map[string][]string{
	"neck":         {"sternocleidomastoid", "scalene", "splenius", "longus colli", "levator scapulae"},
	"upper_back":   {"trapezius", "rhomboid", "latissimus", "teres major"},
	"lower_back":   {"erector spinae", "iliocostalis", "longissimus", "multifidus", "quadratus lumborum"},
	"chest":        {"pectoralis", "serratus anterior"},
	"shoulders":    {"deltoid"},
	"rotator_cuff": {"supraspinatus", "infraspinatus", "teres minor", "subscapularis"},
	"biceps":       {"biceps brachii", "brachialis", "coracobrachialis"},
	"triceps":      {"triceps", "anconeus"},
	"forearms":     {"brachioradialis", "flexor carpi", "extensor carpi", "pronator", "supinator", "palmaris"},
	"core":         {"rectus abdominis", "oblique", "transversus abdominis"},
	"hip_flexors":  {"psoas", "iliacus", "iliopsoas", "sartorius", "tensor fasciae"},
	"glutes":       {"gluteus", "piriformis"},
	"quads":        {"rectus femoris", "vastus"},
	"adductors":    {"adductor", "gracilis", "pectineus"},
	"hamstrings":   {"biceps femoris", "semitendinosus", "semimembranosus"},
	"calves":       {"gastrocnemius", "soleus", "plantaris"},
	"shins":        {"tibialis anterior", "extensor digitorum longus", "peroneus", "fibularis"},
}

// groupOrder fixes the presentation order, roughly head to toe.
var groupOrder = []string{
	"neck", "upper_back", "lower_back", "chest", "shoulders",
	"rotator_cuff", "biceps", "triceps", "forearms", "core",
	"hip_flexors", "glutes", "quads", "adductors", "hamstrings",
	"calves", "shins",
}

// Anatomy resolves mesh IDs to muscle groups. The zero value is unusable;
// use DefaultAnatomy.
type Anatomy struct {
	patterns map[string][]string
	order    []string
}

// DefaultAnatomy returns the built-in 17-group catalog.
func DefaultAnatomy() *Anatomy {
	return &Anatomy{patterns: groupPatterns, order: groupOrder}
}

// GroupNames lists the group names head to toe.
func (a *Anatomy) GroupNames() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// ValidGroup reports whether name is a known muscle group.
func (a *Anatomy) ValidGroup(name string) bool {
	_, ok := a.patterns[name]
	return ok
}

// MeshInGroup reports whether the mesh belongs to the named group.
func (a *Anatomy) MeshInGroup(meshID, group string) bool {
	patterns, ok := a.patterns[group]
	if !ok {
		return false
	}
	name := normalizeMeshName(meshID)
	for _, p := range patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// GroupsForMesh returns every group the mesh belongs to, in catalog order.
func (a *Anatomy) GroupsForMesh(meshID string) []string {
	var out []string
	for _, group := range a.order {
		if a.MeshInGroup(meshID, group) {
			out = append(out, group)
		}
	}
	return out
}

// GroupMeshIDs buckets the available mesh IDs by group, dropping empty
// groups. IDs within a bucket keep their input order.
func (a *Anatomy) GroupMeshIDs(available []string) map[string][]string {
	out := make(map[string][]string)
	for _, id := range available {
		for _, group := range a.GroupsForMesh(id) {
			out[group] = append(out[group], id)
		}
	}
	return out
}

// UngroupedMeshIDs returns the available IDs that match no group, sorted so
// the context block is stable across invocations.
func (a *Anatomy) UngroupedMeshIDs(available []string) []string {
	var out []string
	for _, id := range available {
		if len(a.GroupsForMesh(id)) == 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// GroupLabel renders a group name for humans: "upper_back" -> "Upper Back".
func GroupLabel(group string) string {
	words := strings.Split(group, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func normalizeMeshName(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "_", " "))
}
