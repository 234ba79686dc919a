package gateway

import (
	"context"
	"net/url"

	"github.com/hitoshi/cinelog/internal/model"
)

// GetMovie は映画の詳細を取得する。認証不要。
func (c *Client) GetMovie(ctx context.Context, id string) (*model.Movie, error) {
	var movie model.Movie
	if err := c.getJSON(ctx, "get_movie", "/api/movie/"+url.PathEscape(id), &movie); err != nil {
		return nil, err
	}
	return &movie, nil
}

// SearchMovies はクエリ文字列で映画を検索する。認証不要。
func (c *Client) SearchMovies(ctx context.Context, query string) ([]model.Movie, error) {
	var list model.MovieList
	path := "/api/search?q=" + url.QueryEscape(query)
	if err := c.getJSON(ctx, "search_movies", path, &list); err != nil {
		return nil, err
	}
	return list.Results, nil
}

// PopularMovies は人気映画の一覧を取得する。認証不要。
func (c *Client) PopularMovies(ctx context.Context) ([]model.Movie, error) {
	var list model.MovieList
	if err := c.getJSON(ctx, "popular_movies", "/api/popular", &list); err != nil {
		return nil, err
	}
	return list.Results, nil
}
