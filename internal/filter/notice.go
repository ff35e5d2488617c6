package filter

// NoticeHeader is the optional header emitted alongside an empty 200
// collection response when the mandatory name constraint was not satisfied.
const NoticeHeader = "X-xRegistry-Notice"

// MissingNameConstraintNotice is the detail text attached to NoticeHeader
// when a name-indexed adapter returns an empty page because no filter
// expression constrained name.
const MissingNameConstraintNotice = "no filter constrained the name attribute; returning an empty collection " +
	"rather than scanning the full name index"
