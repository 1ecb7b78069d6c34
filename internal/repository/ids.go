package repository

import "github.com/google/uuid"

// validID はidがUUIDとして解釈できるかどうかを返す。
// UUID型カラムに不正な文字列を渡すとクエリ自体がエラーになるため、検索前に判定する。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
