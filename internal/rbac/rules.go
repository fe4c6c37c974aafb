package rbac

const (
	PermLessonView      = "lesson:view"
	PermLessonSubmit    = "lesson:submit"
	PermProgressViewOwn = "progress:view-own"
	PermProgressViewAll = "progress:view-all"
	PermLessonAuthor    = "lesson:author"
	PermSemesterManage  = "semester:manage"
	PermEnrollManage    = "enrollment:manage"
	PermEventsRead      = "events:read"
)

// RolePermissions is the default policy. Teachers author content and read
// rosters but never submit.
var RolePermissions = map[string][]string{
	"student": {
		PermLessonView,
		PermLessonSubmit,
		PermProgressViewOwn,
	},
	"teacher": {
		PermLessonView,
		PermLessonAuthor,
		PermEnrollManage,
		PermProgressViewAll,
	},
	"admin": {
		"*",
	},
}
