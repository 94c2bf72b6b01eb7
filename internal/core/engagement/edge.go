package engagement

// EdgeType distinguishes the two toggleable engagement edges.
type EdgeType int

const (
	EdgeLike EdgeType = iota
	EdgeSave
)

func (e EdgeType) String() string {
	if e == EdgeSave {
		return "save"
	}
	return "like"
}

// ParseEdgeType maps the wire name of an edge type. Returns ok=false for
// anything unknown.
func ParseEdgeType(s string) (EdgeType, bool) {
	switch s {
	case "like":
		return EdgeLike, true
	case "save":
		return EdgeSave, true
	default:
		return 0, false
	}
}

// TargetKind distinguishes what an edge attaches to.
type TargetKind int

const (
	TargetPage TargetKind = iota
	TargetComment
)

func (k TargetKind) String() string {
	if k == TargetComment {
		return "comment"
	}
	return "page"
}

// ParseTargetKind maps the wire name of a target kind.
func ParseTargetKind(s string) (TargetKind, bool) {
	switch s {
	case "page":
		return TargetPage, true
	case "comment":
		return TargetComment, true
	default:
		return 0, false
	}
}

// Target identifies the entity an edge acts on: a page by its normalized
// URL key, or a comment by its comment ID.
type Target struct {
	Kind TargetKind
	Key  string
}

// counterField returns the denormalized counter an edge type maintains on
// its target entity.
func counterField(edge EdgeType) string {
	if edge == EdgeSave {
		return "saveCount"
	}
	return "likeCount"
}

// targetField returns the edge record attribute that names the target.
func targetField(kind TargetKind) string {
	if kind == TargetComment {
		return "commentID"
	}
	return "urlString"
}
