package detector

import (
	"fmt"
	"regexp"
)

// defaultSignatures holds the built-in signature lists in evaluation order.
//
// The lists favour precision on ordinary JSON and form bodies: operators tune or
// extend them with WithSignatures rather than loosening the defaults.
var defaultSignatures = map[Category][]string{
	CategorySQLInjection: {
		`(?i)\bunion\s+(all\s+)?select\b`,
		`(?i)\bselect\s+\*\s+from\b`,
		`(?i)\bselect\s+(@@\w+|[\w,\s()]+)\s+from\s+[\w.]+\s*(;|--|#|["']|$)`,
		`(?i)\bselect\b.{0,200}\bfrom\b.{0,200}\bwhere\b`,
		`(?i)\bdrop\s+table\b`,
		`(?i)\binsert\s+into\b`,
		`(?i)\bupdate\s+\S+\s+set\b`,
		`(?i)\bdelete\s+from\b`,
		`(?i)\bor\s+1\s*=\s*1\b`,
		`(?i)'\s*or\s*'.*'\s*=\s*'`,
		`'\s*--`,
		`--\s*$`,
		`/\*.*\*/`,
		`(?i)\bxp_cmdshell\b`,
		`(?i)\bsp_executesql\b`,
	},
	CategoryXSS: {
		`(?is)<script[^>]*>.*?</script>`,
		`(?i)<script\b`,
		`(?i)javascript:`,
		`(?i)\bon(load|error|click|dblclick|mouse\w*|focus|blur|key\w*|submit|change|input|abort|toggle|animation\w*|pointer\w*|touch\w*|drag\w*|drop|copy|paste|cut|scroll|resize|unload|beforeunload|message|hashchange|popstate|play|pause|wheel)\s*=`,
		`(?is)<iframe[^>]*>.*?</iframe>`,
		`(?is)<object[^>]*>.*?</object>`,
		`(?is)<embed[^>]*>.*?</embed>`,
		`(?is)<link[^>]*>.*?</link>`,
		`(?is)<meta[^>]*>.*?</meta>`,
		`(?is)<style[^>]*>.*?</style>`,
		`(?i)\bexpression\s*\(`,
		`(?i)\burl\s*\(\s*['"]?\s*javascript`,
		`(?i)@import\b`,
	},
	CategoryCSRF: {
		`(?i)<form[^>]*action[^>]*>`,
		`(?i)<img[^>]*src[^>]*>`,
		`(?i)<iframe[^>]*src[^>]*>`,
	},
	CategoryLDAPInjection: {
		`\*\)`,
		`\)\s*\(\s*[|&!]`,
		`\(\s*[|&!]\s*\(`,
		`(?i)\(\s*(cn|ou|dc|uid)\s*=`,
		`(?i)\bobjectclass\s*=`,
		`(?i)\buserpassword\s*=`,
	},
	CategoryNoSQLInjection: {
		`\$where\b`,
		`\$ne\b`,
		`\$gte?\b`,
		`\$lte?\b`,
		`\$regex\b`,
		`\$exists\b`,
		`\$in\b`,
		`\$nin\b`,
		`\$or\b`,
		`\$and\b`,
		`\$not\b`,
		`\$nor\b`,
		`\$all\b`,
		`\$elemMatch\b`,
		`\$size\b`,
		`\$type\b`,
	},
	CategoryCommandInjection: {
		`(?i);\s*(ls|cat|rm|mkdir|whoami|id|pwd|ps|netstat|ifconfig|uname|wget|curl)\b`,
		`(?i)\|\s*(ls|cat|rm|sh|bash|nc)\b`,
		"`[^`]+`",
		`\$\([^)]*\)`,
		`(?i)&&\s*(ls|cat|rm|whoami|id)\b`,
	},
	CategoryPathTraversal: {
		`\.\./\.\./\.\./`,
		`\.\.\\\.\.\\\.\.\\`,
		`(?i)\.\.%2f\.\.%2f\.\.%2f`,
		`(?i)\.\.%5c\.\.%5c\.\.%5c`,
		`(?i)\.\.%252f\.\.%252f\.\.%252f`,
		`(?i)\.\.%255c\.\.%255c\.\.%255c`,
		`(?i)\.\.%c0%af\.\.%c0%af\.\.%c0%af`,
		`(?i)\.\.%c1%9c\.\.%c1%9c\.\.%c1%9c`,
		`(?i)\.\.%2e%2e%2f`,
		`(?i)\.\.%2e%2e%5c`,
	},
	CategorySSRF: {
		`(?i)https?://localhost\b`,
		`(?i)https?://127\.0\.0\.1\b`,
		`(?i)https?://0\.0\.0\.0\b`,
		`(?i)https?://169\.254\.169\.254`,
		`(?i)https?://metadata\.google(apis)?\.(com|internal)`,
		`(?i)file:///etc/passwd`,
		`(?i)file:///proc/self/environ`,
		`(?i)gopher://`,
		`(?i)dict://`,
		`(?i)ftp://`,
		`(?i)ldap://`,
	},
	CategoryXXE: {
		`(?i)<!DOCTYPE`,
		`(?i)<!ENTITY`,
		`\bSYSTEM\s+["']`,
		`\bPUBLIC\s+["']`,
		`%[a-zA-Z0-9_]+;`,
		`(?i)file:///`,
		`(?i)expect://`,
	},
	CategoryInfoDisclosure: {
		`(?i)\b(password|passwd|secret|client[_-]?secret)\b["']?\s*[=:]`,
		`(?i)\b(api[_-]?key|access[_-]?key|secret[_-]?key|private[_-]?key)\b`,
		`(?i)\b(phpinfo|server-status|server-info)\b`,
		`(?i)(^|[\s/"'])\.(env|git|svn|htaccess|htpasswd)\b`,
		`(?i)/proc/self/(environ|cmdline)`,
		`(?i)\b(debug|verbose)\b["']?\s*[=:]\s*["']?(true|1|on)\b`,
		`(?i)\b(stack\s*trace|internal\s+version|build\s+number)\b`,
	},
	CategorySuspicious: {
		`(?i)\badmin(istrator)?\b`,
		`(?i)\broot\b`,
		`(?i)\btest\b`,
		`(?i)\bdebug\b`,
		`(?i)\bconfig\b`,
		`(?i)\bbackup\b`,
		`\.\./`,
		`\.\.\\`,
		`(?i)\bpasswd\b`,
		`(?i)\bshadow\b`,
		`(?i)etc/passwd`,
	},
}

func compileSignatures(c Category, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %s signature %q: %w", c, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
