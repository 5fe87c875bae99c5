package pricing

// 모델/해상도별 이미지 1장당 포인트 단가.
// 가격은 제출 시점에 한 번 계산되어 job에 고정된다 - 이후 단가가 바뀌어도
// 환불 금액은 job에 저장된 값을 쓴다.
var pointsPerImage = map[string]map[string]int{
	"schnell": {
		"1K": 2,
		"2K": 3,
	},
	"dev": {
		"1K": 4,
		"2K": 6,
	},
	"pro": {
		"1K": 6,
		"2K": 10,
	},
}

const defaultPointsPerImage = 6

// PointsNeeded - (모델, 해상도, 장수)로 필요한 포인트 계산. 순수 함수.
func PointsNeeded(modelType, resolution string, numImages int) int {
	if numImages < 1 {
		numImages = 1
	}

	perImage := defaultPointsPerImage
	if byResolution, ok := pointsPerImage[modelType]; ok {
		if price, ok := byResolution[resolution]; ok {
			perImage = price
		}
	}

	return perImage * numImages
}
