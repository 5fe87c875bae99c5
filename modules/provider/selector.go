package provider

// Endpoint - 외부 큐의 (provider, model) 조합 하나.
// 경로는 {base}/{Provider}/{Model} 형태로 조립된다.
type Endpoint struct {
	Provider     string
	Model        string
	SupportsEdit bool // 입력 이미지 편집 지원 여부
}

// Path - 큐 base URL 뒤에 붙는 경로
func (e Endpoint) Path() string {
	return e.Provider + "/" + e.Model
}

// route - (modelType, 입력 이미지 유무)별 엔드포인트 순서.
// 첫 번째가 primary, 나머지가 fallback 순서. fallback 순서는 데이터다 -
// 코드 분기가 아니라 이 테이블만 고치면 된다.
type routeKey struct {
	modelType string
	hasInput  bool
}

var routes = map[routeKey][]Endpoint{
	{"schnell", false}: {
		{Provider: "fal-ai", Model: "flux/schnell"},
		{Provider: "fal-ai", Model: "flux/dev"},
	},
	{"schnell", true}: {
		{Provider: "fal-ai", Model: "flux/dev/image-to-image", SupportsEdit: true},
		{Provider: "fal-ai", Model: "flux-pro/kontext", SupportsEdit: true},
	},
	{"dev", false}: {
		{Provider: "fal-ai", Model: "flux/dev"},
		{Provider: "fal-ai", Model: "flux/schnell"},
	},
	{"dev", true}: {
		{Provider: "fal-ai", Model: "flux/dev/image-to-image", SupportsEdit: true},
		{Provider: "fal-ai", Model: "flux-pro/kontext", SupportsEdit: true},
	},
	{"pro", false}: {
		{Provider: "fal-ai", Model: "flux-pro/v1.1"},
		{Provider: "fal-ai", Model: "flux/dev"},
	},
	{"pro", true}: {
		{Provider: "fal-ai", Model: "flux-pro/kontext", SupportsEdit: true},
		{Provider: "fal-ai", Model: "flux/dev/image-to-image", SupportsEdit: true},
	},
}

// 2K 해상도는 pro 계열만 지원 - 2K 요청은 pro 라우트로 승격된다
var highResKey = routeKey{"pro", false}
var highResEditKey = routeKey{"pro", true}

// ResolveEndpoint - primary 엔드포인트와 ordered fallback 목록 반환.
// 네트워크 호출 없음.
func ResolveEndpoint(modelType, resolution string, hasInputImages bool) (Endpoint, []Endpoint) {
	key := routeKey{modelType: modelType, hasInput: hasInputImages}

	if resolution == "2K" {
		if hasInputImages {
			key = highResEditKey
		} else {
			key = highResKey
		}
	}

	order, ok := routes[key]
	if !ok {
		// 알 수 없는 모델 타입은 dev 라우트로
		order = routes[routeKey{"dev", hasInputImages}]
	}

	return order[0], order[1:]
}
