package engagement

import "margin/internal/recordstore"

// Edge keys are deterministic composites of a fixed prefix, the acting
// user's ID, and the target's key. Two independent processes must derive
// identical keys from the same (type, user, target) tuple; the key format
// is part of the wire contract, and key collision on duplicate create is
// what substitutes for a uniqueness constraint in the store.

// PageLikeKey builds the record key for a user's like on a page.
func PageLikeKey(userID, pageKey string) string {
	return "weblike_" + userID + "_" + pageKey
}

// PageSaveKey builds the record key for a user's save of a page.
func PageSaveKey(userID, pageKey string) string {
	return "websave_" + userID + "_" + pageKey
}

// CommentLikeKey builds the record key for a user's like on a comment.
func CommentLikeKey(userID, commentID string) string {
	return "like_" + userID + "_" + commentID
}

// CommentSaveKey builds the record key for a user's save of a comment.
func CommentSaveKey(userID, commentID string) string {
	return "save_" + userID + "_" + commentID
}

// EdgeKey dispatches to the per-edge key builders.
func EdgeKey(edge EdgeType, target Target, userID string) string {
	switch target.Kind {
	case TargetPage:
		if edge == EdgeLike {
			return PageLikeKey(userID, target.Key)
		}
		return PageSaveKey(userID, target.Key)
	default:
		if edge == EdgeLike {
			return CommentLikeKey(userID, target.Key)
		}
		return CommentSaveKey(userID, target.Key)
	}
}

// edgeRecordType maps an edge/target pair to its stored record type.
func edgeRecordType(edge EdgeType, kind TargetKind) string {
	switch {
	case kind == TargetPage && edge == EdgeLike:
		return recordstore.TypePageLike
	case kind == TargetPage && edge == EdgeSave:
		return recordstore.TypePageSave
	case kind == TargetComment && edge == EdgeLike:
		return recordstore.TypeCommentLike
	default:
		return recordstore.TypeCommentSave
	}
}

// keyPrefix returns the membership prefix for one user's edges of one
// type, used to rebuild the projection during refresh.
func keyPrefix(edge EdgeType, kind TargetKind, userID string) string {
	return EdgeKey(edge, Target{Kind: kind}, userID)
}
