package intent

// companionHosts maps well-known anchor hosts to the CDN and API hosts a
// normal page load on them will also contact. The parser folds these into the
// intent's domain allowlist and the HTTP filter uses the same table when
// predicting an allowlist, so both layers agree on what "newegg.com" implies.
var companionHosts = map[string][]string{
	"github.com": {
		"api.github.com",
		"raw.githubusercontent.com",
		"avatars.githubusercontent.com",
		"github.githubassets.com",
		"codeload.github.com",
	},
	"gitlab.com": {
		"assets.gitlab-static.net",
		"secure.gravatar.com",
	},
	"google.com": {
		"www.gstatic.com",
		"fonts.gstatic.com",
		"apis.google.com",
	},
	"amazon.com": {
		"m.media-amazon.com",
		"images-na.ssl-images-amazon.com",
	},
	"wikipedia.org": {
		"upload.wikimedia.org",
	},
	"stackoverflow.com": {
		"cdn.sstatic.net",
	},
}

// searchEngineDomains is the fallback allowlist for search tasks that name no
// site at all.
var searchEngineDomains = []string{
	"google.com",
	"www.google.com",
	"duckduckgo.com",
	"www.duckduckgo.com",
	"bing.com",
	"www.bing.com",
}

// CompanionsFor returns the statically-known companion hosts for an anchor
// domain, or nil.
func CompanionsFor(domain string) []string {
	return companionHosts[domain]
}
