package ytdlp

// DownloadFormats orders the download fallback list: the listing's
// selected format goes first, then the profile formats with duplicates
// dropped. An empty result gets one catch-all entry so at least one
// attempt runs.
func DownloadFormats(profileFormats []string, selected string) []string {
	out := make([]string, 0, len(profileFormats)+1)
	seen := make(map[string]bool, len(profileFormats)+1)
	if selected != "" {
		out = append(out, selected)
		seen[selected] = true
	}
	for _, f := range profileFormats {
		if f == "" || seen[f] {
			continue
		}
		out = append(out, f)
		seen[f] = true
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}

// queryArgs builds the argv of one simulate run.
func (c *Client) queryArgs(rawURL, format string, audio bool) []string {
	args := []string{"-q", "--no-warnings", "-s", "-j"}
	args = append(args, c.commonArgs()...)
	if format != "" {
		args = append(args, "-f", format)
	}
	if audio {
		args = append(args, "-x", "--audio-format", "mp3")
	}
	return append(args, rawURL)
}

// downloadArgs builds the argv of one download attempt into dir.
func (c *Client) downloadArgs(rawURL, format, dir string, audio bool) []string {
	args := []string{"-q", "--no-warnings"}
	args = append(args, c.commonArgs()...)
	if format != "" {
		args = append(args, "-f", format)
	}
	if audio {
		args = append(args, "-x", "--audio-format", "mp3", "--embed-thumbnail")
	}
	args = append(args, "-P", dir)
	return append(args, rawURL)
}

func (c *Client) commonArgs() []string {
	var args []string
	if c.opts.CookiesFile != "" {
		args = append(args, "--cookies", c.opts.CookiesFile)
	}
	if c.opts.Proxy != "" {
		args = append(args, "--proxy", c.opts.Proxy)
	}
	if c.opts.UserAgent != "" {
		args = append(args, "--user-agent", c.opts.UserAgent)
	}
	return args
}
