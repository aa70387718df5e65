package shared

// Permissions understood by the platform. Roles grant subsets of these and
// route guards check them by name.
const (
	PermAdminAccess     = "admin_access"
	PermArticleCreate   = "article_create"
	PermArticleEditAll  = "article_edit_all"
	PermArticlePublish  = "article_publish"
	PermArticleDelete   = "article_delete"
	PermCommentModerate = "comment_moderate"
	PermTagManage       = "tag_manage"
	PermUserManage      = "user_manage"
)

// PermissionCatalog lists every permission in display order.
func PermissionCatalog() []string {
	return []string{
		PermAdminAccess,
		PermArticleCreate,
		PermArticleEditAll,
		PermArticlePublish,
		PermArticleDelete,
		PermCommentModerate,
		PermTagManage,
		PermUserManage,
	}
}

// KnownPermission reports whether name belongs to the catalog.
func KnownPermission(name string) bool {
	for _, p := range PermissionCatalog() {
		if p == name {
			return true
		}
	}
	return false
}
