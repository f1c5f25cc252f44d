package utils

import "fmt"

// EmbedSources lists player URLs for a title in priority order. kind is
// "movie", "tv" or "episode"; episodes need season and episode.
func EmbedSources(kind, id string, season, episode *int) []string {
	switch kind {
	case "movie":
		return []string{
			fmt.Sprintf("https://vidfast.pro/movie/%s?autoPlay=true&sub=ar", id),
			fmt.Sprintf("https://vidsrc.to/embed/movie/%s", id),
			fmt.Sprintf("https://vidsrc.xyz/embed/movie?tmdb=%s", id),
			fmt.Sprintf("https://vidsrc.pro/embed/movie/%s", id),
			fmt.Sprintf("https://www.2embed.cc/embed/%s", id),
			fmt.Sprintf("https://multiembed.mov/?video_id=%s&tmdb=1", id),
			fmt.Sprintf("https://autoembed.co/movie/tmdb/%s", id),
		}
	case "tv":
		return []string{
			fmt.Sprintf("https://vidfast.pro/tv/%s?sub=ar", id),
			fmt.Sprintf("https://vidsrc.me/embed/tv?tmdb=%s", id),
			fmt.Sprintf("https://vidsrc.xyz/embed/tv?tmdb=%s", id),
			fmt.Sprintf("https://vidsrc.pro/embed/tv/%s", id),
			fmt.Sprintf("https://www.2embed.cc/embedtv/%s", id),
			fmt.Sprintf("https://vidsrc.to/embed/tv/%s", id),
		}
	case "episode":
		if season == nil || episode == nil {
			return nil
		}
		s, e := *season, *episode
		return []string{
			fmt.Sprintf("https://vidfast.pro/tv/%s/%d/%d?autoPlay=true&nextButton=true&autoNext=true&sub=ar", id, s, e),
			fmt.Sprintf("https://www.2embed.cc/embedtv/%s?s=%d&e=%d", id, s, e),
			fmt.Sprintf("https://vidsrc.to/embed/tv/%s/%d/%d", id, s, e),
			fmt.Sprintf("https://multiembed.mov/?video_id=%s&tmdb=1&s=%d&e=%d", id, s, e),
			fmt.Sprintf("https://autoembed.co/tv/tmdb/%s-%d-%d", id, s, e),
		}
	}
	return nil
}
