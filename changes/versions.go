package changes

const (
	Version20190520 = "2019-05-20"
	Version20200810 = "2020-08-10"
)

// Canonical is the version business logic speaks.
const Canonical = Version20200810

// Versions is the ordered catalog of public API versions.
func Versions() []string {
	return []string{Version20190520, Version20200810}
}
