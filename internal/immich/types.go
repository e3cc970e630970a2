package immich

// assetTypeImage 是 Immich 资产类型字段中图片的取值，列表接口只保留该类型。
const assetTypeImage = "IMAGE"

// Asset 描述 Immich 的单个资产（照片/视频）元数据的子集。
type Asset struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	OriginalFileName string `json:"originalFileName"`
	IsFavorite       bool   `json:"isFavorite"`
}

// Album 描述相册元数据；详情接口里 Assets 会被填充。
type Album struct {
	ID         string  `json:"id"`
	AlbumName  string  `json:"albumName"`
	AssetCount int     `json:"assetCount"`
	Assets     []Asset `json:"assets,omitempty"`
}

// User 是 /api/users/me 返回的当前用户信息子集。
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// filterImages 只保留 IMAGE 类型的资产，列表接口共享该逻辑。
func filterImages(assets []Asset) []Asset {
	filtered := make([]Asset, 0, len(assets))
	for _, asset := range assets {
		if asset.Type == assetTypeImage {
			filtered = append(filtered, asset)
		}
	}
	return filtered
}
