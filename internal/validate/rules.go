package validate

// Rule set names, one per guarded operation.
const (
	ArticleCreate  = "article.create"
	ArticleUpdate  = "article.update"
	Login          = "login"
	Register       = "register"
	ProfileUpdate  = "profile.update"
	PasswordChange = "password.change"
	CategoryCreate = "category.create"
)

// Rule checks one field with a validator tag expression.
//
// Optional rules are skipped when the field is absent from the payload. Trim and Lower
// are the only normalisations ever applied, and only when declared.
type Rule struct {
	Field        string
	Tag          string
	Optional     bool
	Trim         bool
	Lower        bool
	DistinctFrom string
}

var ruleSets = map[string][]Rule{
	ArticleCreate: {
		{Field: "title", Tag: "required,max=200", Trim: true},
		{Field: "introduction", Tag: "max=500", Optional: true, Trim: true},
		{Field: "content", Tag: "required", Trim: true},
		{Field: "category_id", Tag: "omitempty,number", Optional: true, Trim: true},
		{Field: "status", Tag: "omitempty,oneof=draft published", Optional: true, Trim: true, Lower: true},
	},
	ArticleUpdate: {
		{Field: "title", Tag: "required,max=200", Optional: true, Trim: true},
		{Field: "introduction", Tag: "max=500", Optional: true, Trim: true},
		{Field: "content", Tag: "required", Optional: true, Trim: true},
		{Field: "category_id", Tag: "omitempty,number", Optional: true, Trim: true},
		{Field: "status", Tag: "required,oneof=draft published", Optional: true, Trim: true, Lower: true},
	},
	Login: {
		{Field: "email", Tag: "required,email", Trim: true, Lower: true},
		{Field: "password", Tag: "required"},
	},
	Register: {
		{Field: "username", Tag: "required,min=3,max=32", Trim: true},
		{Field: "email", Tag: "required,email,max=254", Trim: true, Lower: true},
		{Field: "password", Tag: "required,min=8,max=72"},
	},
	ProfileUpdate: {
		{Field: "username", Tag: "required,min=3,max=32", Optional: true, Trim: true},
		{Field: "avatar_url", Tag: "omitempty,url,max=2048", Optional: true, Trim: true},
		{Field: "bio", Tag: "max=500", Optional: true, Trim: true},
	},
	PasswordChange: {
		{Field: "current_password", Tag: "required"},
		{Field: "new_password", Tag: "required,min=8,max=72", DistinctFrom: "current_password"},
	},
	CategoryCreate: {
		{Field: "name", Tag: "required,max=64", Trim: true},
	},
}
