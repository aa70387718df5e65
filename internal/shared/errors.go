package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Unknown email, wrong
	// password and disabled account all surface as this one error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a request with no signed-in user.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates an authenticated user lacking permission.
	ErrForbidden = errors.New("forbidden")
	// ErrDuplicateEmail indicates a duplicate account email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateUsername indicates a duplicate account username.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrSlugTaken indicates a duplicate article or tag slug.
	ErrSlugTaken = errors.New("slug already in use")
	// ErrRoleNameTaken indicates a duplicate role name.
	ErrRoleNameTaken = errors.New("role name already in use")
	// ErrRoleInUse indicates a role still assigned to users.
	ErrRoleInUse = errors.New("role still assigned to users")
	// ErrTagNameTaken indicates a duplicate tag name.
	ErrTagNameTaken = errors.New("tag name already in use")
	// ErrTagInUse indicates a tag still attached to articles.
	ErrTagInUse = errors.New("tag still attached to articles")
	// ErrSelfDelete indicates an administrator deleting their own account.
	ErrSelfDelete = errors.New("cannot delete own account")
	// ErrUserHasContent indicates deleting an account that still owns articles.
	ErrUserHasContent = errors.New("account still owns articles")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage translates domain errors into copy fit for a flash
// message. Anything unrecognized collapses to a generic line so internals
// never leak into templates.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in to continue."
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to do that."
	case errors.Is(err, ErrNotFound):
		return "The requested item could not be found."
	case errors.Is(err, ErrDuplicateEmail):
		return "That email address is already registered."
	case errors.Is(err, ErrDuplicateUsername):
		return "That username is already taken."
	case errors.Is(err, ErrSlugTaken):
		return "That slug is already in use."
	case errors.Is(err, ErrRoleNameTaken):
		return "A role with that name already exists."
	case errors.Is(err, ErrRoleInUse):
		return "That role is still assigned to users and cannot be deleted."
	case errors.Is(err, ErrTagNameTaken):
		return "A tag with that name already exists."
	case errors.Is(err, ErrTagInUse):
		return "That tag is still attached to articles and cannot be deleted."
	case errors.Is(err, ErrSelfDelete):
		return "You cannot delete your own account."
	case errors.Is(err, ErrUserHasContent):
		return "That account still owns articles. Reassign or delete them first."
	case errors.Is(err, ErrCSRFTokenMissing), errors.Is(err, ErrCSRFTokenMismatch):
		return "Your form session expired. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
