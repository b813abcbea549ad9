package todo

// actionWeight ranks how urgently an action usually needs attention.
var actionWeight = map[Action]int{
	ActionAssigned:              5,
	ActionReviewRequested:       4,
	ActionDirectlyAddressed:     3,
	ActionBuildFailed:           3,
	ActionApprovalRequired:      2,
	ActionUnmergeable:           2,
	ActionMergeTrainRemoved:     2,
	ActionMentioned:             1,
	ActionReviewSubmitted:       1,
	ActionMemberAccessRequested: 1,
	ActionMarked:                0,
}

// Priority scores an item for SortPriority. Higher sorts first.
func Priority(item Item) int {
	score := actionWeight[item.Action]

	if item.TargetType == "MergeRequest" {
		score++
	}

	if item.State.IsDone() {
		score -= 10
	}

	return score
}
