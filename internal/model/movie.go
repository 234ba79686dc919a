// Package model はドメインモデルを定義する。
package model

// Movie は映画の詳細情報を表す。読み取り専用で、このレイヤーでは変更しない。
type Movie struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	VoteAverage  float64 `json:"vote_average"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
}

// MovieList は検索・人気エンドポイントのレスポンスを表す。
type MovieList struct {
	Results []Movie `json:"results"`
}
