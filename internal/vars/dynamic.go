package vars

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator produces a fresh value on every call. Generators hold no shared
// mutable state, so concurrent resolutions need no coordination.
type Generator func() string

// The registry mirrors the Postman dynamic-variable catalogue so request
// text written for the reference tool resolves unmodified. Keys are stored
// lowercased; lookup is case-insensitive.
var generators = map[string]Generator{
	"$guid":       func() string { return uuid.NewString() },
	"$uuid":       func() string { return uuid.NewString() },
	"$randomuuid": func() string { return uuid.NewString() },

	"$timestamp":    func() string { return fmt.Sprintf("%d", time.Now().Unix()) },
	"$isotimestamp": func() string { return time.Now().UTC().Format(time.RFC3339) },
	"$randomdatepast": func() string {
		return time.Now().AddDate(0, 0, -1-rand.IntN(3650)).Format("2006-01-02")
	},
	"$randomdatefuture": func() string {
		return time.Now().AddDate(0, 0, 1+rand.IntN(3650)).Format("2006-01-02")
	},
	"$randomweekday": func() string { return pick(weekdays) },
	"$randommonth":   func() string { return pick(months) },

	"$randomint":          func() string { return fmt.Sprintf("%d", rand.IntN(1001)) },
	"$randomboolean":      func() string { return pick([]string{"true", "false"}) },
	"$randomalphanumeric": func() string { return randomAlphaNumeric(1) },
	"$randompassword": func() string {
		return randomChars(15, alphaNumeric+"-_@#!")
	},
	"$randomhexcolor": func() string {
		return fmt.Sprintf("#%06x", rand.IntN(1<<24))
	},
	"$randomrgbcolor": func() string {
		return fmt.Sprintf("rgb(%d,%d,%d)", rand.IntN(256), rand.IntN(256), rand.IntN(256))
	},
	"$randomcolor": func() string { return pick(colors) },

	"$randomip": func() string {
		return fmt.Sprintf("%d.%d.%d.%d",
			1+rand.IntN(254), rand.IntN(256), rand.IntN(256), 1+rand.IntN(254))
	},
	"$randomipv6": func() string {
		segs := make([]string, 8)
		for i := range segs {
			segs[i] = fmt.Sprintf("%04x", rand.IntN(1<<16))
		}
		return strings.Join(segs, ":")
	},
	"$randommacaddress": func() string {
		parts := make([]string, 6)
		for i := range parts {
			parts[i] = fmt.Sprintf("%02x", rand.IntN(256))
		}
		return strings.Join(parts, ":")
	},
	"$randomport": func() string { return fmt.Sprintf("%d", 1024+rand.IntN(64512)) },

	"$randomfirstname": func() string { return pick(firstNames) },
	"$randomlastname":  func() string { return pick(lastNames) },
	"$randomfullname":  func() string { return pick(firstNames) + " " + pick(lastNames) },
	"$randomnameprefix": func() string {
		return pick([]string{"Mr.", "Ms.", "Mrs.", "Dr.", "Prof."})
	},
	"$randomnamesuffix": func() string {
		return pick([]string{"Jr.", "Sr.", "II", "III", "PhD", "MD"})
	},

	"$randomusername": func() string {
		return strings.ToLower(pick(firstNames)) + "." + strings.ToLower(pick(lastNames))
	},
	"$randomemail": func() string {
		return strings.ToLower(pick(firstNames)) + "." +
			strings.ToLower(pick(lastNames)) + "@" + pick(domainWords) + "." + pick(domainSuffixes)
	},
	"$randomexampleemail": func() string {
		return strings.ToLower(pick(firstNames)) + "@example." + pick([]string{"com", "org", "net"})
	},

	"$randomurl": func() string {
		return "https://" + pick(domainWords) + "." + pick(domainSuffixes)
	},
	"$randomdomainname": func() string {
		return pick(domainWords) + "." + pick(domainSuffixes)
	},
	"$randomdomainword":   func() string { return pick(domainWords) },
	"$randomdomainsuffix": func() string { return pick(domainSuffixes) },
	"$randomuseragent":    func() string { return pick(userAgents) },
	"$randomprotocol":     func() string { return pick([]string{"http", "https"}) },
	"$randomsemver": func() string {
		return fmt.Sprintf("%d.%d.%d", rand.IntN(10), rand.IntN(20), rand.IntN(50))
	},

	"$randomcity":    func() string { return pick(cities) },
	"$randomcountry": func() string { return pick(countries) },
	"$randomcountrycode": func() string {
		return pick([]string{"US", "GB", "DE", "FR", "PL", "JP", "BR", "AU", "CA", "SE"})
	},
	"$randomstreetname": func() string {
		return pick(streetWords) + " " + pick([]string{"Street", "Avenue", "Lane", "Road", "Way"})
	},
	"$randomstreetaddress": func() string {
		return fmt.Sprintf("%d %s %s", 1+rand.IntN(9999), pick(streetWords),
			pick([]string{"Street", "Avenue", "Lane", "Road", "Way"}))
	},
	"$randomlatitude": func() string {
		return fmt.Sprintf("%.4f", rand.Float64()*180-90)
	},
	"$randomlongitude": func() string {
		return fmt.Sprintf("%.4f", rand.Float64()*360-180)
	},
	"$randomphonenumber": func() string {
		return fmt.Sprintf("%03d-%03d-%04d", 100+rand.IntN(900), 100+rand.IntN(900), rand.IntN(10000))
	},

	"$randomword":      func() string { return pick(words) },
	"$randomwords":     func() string { return pick(words) + " " + pick(words) + " " + pick(words) },
	"$randomadjective": func() string { return pick(adjectives) },
	"$randomnoun":      func() string { return pick(nouns) },
	"$randomverb":      func() string { return pick(verbs) },

	"$randomprice": func() string {
		return fmt.Sprintf("%d.%02d", 1+rand.IntN(999), rand.IntN(100))
	},
	"$randomcurrencycode": func() string {
		return pick([]string{"USD", "EUR", "GBP", "PLN", "JPY", "CHF", "AUD", "CAD", "SEK", "NOK"})
	},
	"$randomproduct": func() string { return pick(nouns) },
	"$randomcompanyname": func() string {
		return pick(lastNames) + " " + pick([]string{"Group", "Labs", "Inc", "LLC", "Partners"})
	},
	"$randomjobtitle": func() string {
		return pick(jobDescriptors) + " " + pick(jobAreas) + " " + pick(jobTypes)
	},
	"$randomjobarea":       func() string { return pick(jobAreas) },
	"$randomjobdescriptor": func() string { return pick(jobDescriptors) },
	"$randomjobtype":       func() string { return pick(jobTypes) },

	"$randomfilename": func() string {
		return pick(words) + "." + pick([]string{"txt", "json", "csv", "pdf", "png"})
	},
	"$randomfileext": func() string {
		return pick([]string{"txt", "json", "csv", "pdf", "png", "zip"})
	},
	"$randommimetype": func() string {
		return pick([]string{
			"application/json", "text/plain", "text/html",
			"application/xml", "image/png", "application/octet-stream",
		})
	},
	"$randombankaccount": func() string { return fmt.Sprintf("%08d", rand.IntN(100000000)) },
	"$randomabbreviation": func() string {
		return pick([]string{"HTTP", "TCP", "SSL", "API", "JSON", "XML", "SQL", "RAM", "CLI", "SDK"})
	},
}

// GenerateDynamic resolves a $name dynamic token. A miss is not an error;
// the resolver reports the token unresolved instead.
func GenerateDynamic(name string) (string, bool) {
	gen, ok := generators[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return gen(), true
}

func DynamicNames() []string {
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const alphaNumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func pick(list []string) string {
	return list[rand.IntN(len(list))]
}

func randomChars(n int, charset string) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return string(b)
}

func randomAlphaNumeric(n int) string {
	return randomChars(n, alphaNumeric)
}

var (
	weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	months   = []string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	}
	colors = []string{
		"red", "green", "blue", "yellow", "purple", "orange",
		"cyan", "magenta", "teal", "maroon", "olive", "silver",
	}
	firstNames = []string{
		"Ada", "Alan", "Edsger", "Grace", "Linus", "Margaret",
		"Dennis", "Barbara", "Ken", "Radia", "Donald", "Frances",
	}
	lastNames = []string{
		"Lovelace", "Turing", "Dijkstra", "Hopper", "Torvalds", "Hamilton",
		"Ritchie", "Liskov", "Thompson", "Perlman", "Knuth", "Allen",
	}
	domainWords    = []string{"acme", "globex", "initech", "umbrella", "hooli", "stark", "wayne", "wonka"}
	domainSuffixes = []string{"com", "org", "net", "io", "dev", "info"}
	cities         = []string{
		"Warsaw", "Lisbon", "Oslo", "Kyoto", "Austin", "Zurich",
		"Porto", "Tallinn", "Bergen", "Lyon", "Cork", "Graz",
	}
	countries = []string{
		"Poland", "Portugal", "Norway", "Japan", "Germany", "France",
		"Ireland", "Austria", "Estonia", "Sweden", "Canada", "Brazil",
	}
	streetWords = []string{"Oak", "Maple", "Cedar", "Elm", "Pine", "Birch", "Willow", "Aspen"}
	words       = []string{
		"latency", "payload", "socket", "buffer", "packet", "cursor",
		"schema", "token", "digest", "vector", "quorum", "ledger",
	}
	adjectives = []string{
		"swift", "idle", "eager", "stale", "atomic", "lazy", "greedy", "sparse",
	}
	nouns = []string{
		"pipeline", "registry", "gateway", "broker", "cache", "queue", "shard", "replica",
	}
	verbs = []string{
		"resolve", "dispatch", "persist", "encode", "replay", "throttle", "merge", "flush",
	}
	jobAreas = []string{
		"Infrastructure", "Data", "Security", "Platform", "Quality", "Research",
	}
	jobDescriptors = []string{"Lead", "Senior", "Principal", "Global", "Dynamic", "Chief"}
	jobTypes       = []string{"Engineer", "Architect", "Analyst", "Manager", "Specialist"}
	userAgents     = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	}
)
