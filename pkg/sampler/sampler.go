// Package sampler draws per-peer network profiles from a categorical
// mixture of access technologies. Each technology carries four normal
// distributions (upload, download, latency, loss) whose parameters were
// fitted against real broadband measurement data.
package sampler

import (
	"math"
	"strconv"

	"github.com/p2plab/p2p-testbed/pkg/model"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Technology shares of the mixture, in percent. A single uniform draw in
// [0, 100) selects the technology.
const (
	adslShare  = 77.30
	cableShare = 19.70
	fttcShare  = 3.00
)

// maxRejectionAttempts bounds every rejection loop. Exhausting it means
// the configured distributions cannot produce a usable profile.
const maxRejectionAttempts = 10000

// technology bundles the distribution parameters of one access technology.
// Upload and download are in Mbit/s, latency in ms, loss as a fraction.
type technology struct {
	name                   string
	upMean, upSigma        float64
	downMean, downSigma    float64
	latMean, latSigma      float64
	lossMean, lossSigma    float64
}

var technologies = []technology{
	{
		name:     "ADSL",
		upMean:   0.8241263021582734, upSigma: 0.21124587974728493,
		downMean: 9.489131670827337, downSigma: 5.811595717123024,
		latMean:  25.5033015573741, latSigma: 9.71303335021941,
		lossMean: 0.001967985611510791, lossSigma: 0.0047487657799690644,
	},
	{
		name:     "Cable",
		upMean:   18.612462057142857, upSigma: 11.386316445471635,
		downMean: 211.760197609, downSigma: 106.11755346760694,
		latMean:  17.643558222285716, latSigma: 2.341692489398925,
		lossMean: 0.0026428571428571425, lossSigma: 0.010508706830750317,
	},
	{
		name:     "FTTC",
		upMean:   13.7526504, upSigma: 5.233485819565032,
		downMean: 52.611914328, downSigma: 17.76856566435048,
		latMean:  12.959799725, latSigma: 5.467801480564891,
		lossMean: 0.0005, lossSigma: 0.0007378647873726219,
	},
}

// Origin profile bounds. The origin is drawn from a separate uniform
// because it models a well-provisioned server, not a consumer line.
const (
	originUploadMin   = 25000
	originUploadMax   = 30000
	originDownloadMin = 78000
	originDownloadMax = 80000
	originLatency     = 40.20
	originLoss        = 0.0024
)

// Sampler draws peer profiles from the technology mixture. It is the only
// intentionally non-deterministic component of the pipeline; a fixed seed
// makes runs reproducible.
type Sampler struct {
	rng *rand.Rand
}

// New returns a sampler seeded for reproducibility.
func New(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(uint64(seed)))}
}

// selectTechnology rolls the categorical mixture.
func (s *Sampler) selectTechnology() technology {
	roll := s.rng.Float64() * 100
	switch {
	case roll <= adslShare:
		return technologies[0]
	case roll <= adslShare+cableShare:
		return technologies[1]
	default:
		return technologies[2]
	}
}

func (s *Sampler) normal(mu, sigma float64) distuv.Normal {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: s.rng}
}

// sampleNonNegative rejects negative draws until one lands in [0, inf).
func (s *Sampler) sampleNonNegative(mu, sigma float64) (float64, error) {
	dist := s.normal(mu, sigma)
	for i := 0; i < maxRejectionAttempts; i++ {
		if v := dist.Rand(); v >= 0 {
			return v, nil
		}
	}
	return 0, model.ErrSamplerUnsatisfiable
}

// samplePositive rejects draws until one is strictly positive.
func (s *Sampler) samplePositive(mu, sigma float64) (float64, error) {
	dist := s.normal(mu, sigma)
	for i := 0; i < maxRejectionAttempts; i++ {
		if v := dist.Rand(); v > 0 {
			return v, nil
		}
	}
	return 0, model.ErrSamplerUnsatisfiable
}

// toKbit converts Mbit/s to integer Kbit/s, rounding half away from zero.
func toKbit(mbit float64) int {
	return int(math.Round(mbit * 1000))
}

// Profiles draws n peer profiles named "1".."n". A profile whose converted
// capacities violate the upload < download invariant is redrawn; the
// redraw budget shares the rejection bound.
func (s *Sampler) Profiles(n int) ([]model.Peer, error) {
	peers := make([]model.Peer, 0, n)
	for i := 1; i <= n; i++ {
		peer, err := s.profile(peerName(i))
		if err != nil {
			return nil, err
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

func (s *Sampler) profile(name string) (model.Peer, error) {
	for attempt := 0; attempt < maxRejectionAttempts; attempt++ {
		tech := s.selectTechnology()

		up, err := s.samplePositive(tech.upMean, tech.upSigma)
		if err != nil {
			return model.Peer{}, err
		}
		down, err := s.samplePositive(tech.downMean, tech.downSigma)
		if err != nil {
			return model.Peer{}, err
		}
		lat, err := s.sampleNonNegative(tech.latMean, tech.latSigma)
		if err != nil {
			return model.Peer{}, err
		}
		loss, err := s.sampleNonNegative(tech.lossMean, tech.lossSigma)
		if err != nil {
			return model.Peer{}, err
		}
		if loss > 1 {
			continue
		}

		peer := model.Peer{
			Name:        name,
			MaxUpload:   toKbit(up),
			MaxDownload: toKbit(down),
			Latency:     lat,
			Loss:        loss,
		}
		if peer.MaxUpload <= 0 || peer.MaxDownload <= 0 || peer.MaxUpload >= peer.MaxDownload {
			continue
		}
		return peer, nil
	}
	return model.Peer{}, model.ErrSamplerUnsatisfiable
}

// Origin draws the artifact source profile from its dedicated uniform.
func (s *Sampler) Origin() model.Peer {
	return model.Peer{
		Name:        model.OriginName,
		MaxUpload:   originUploadMin + s.rng.Intn(originUploadMax-originUploadMin+1),
		MaxDownload: originDownloadMin + s.rng.Intn(originDownloadMax-originDownloadMin+1),
		Latency:     originLatency,
		Loss:        originLoss,
	}
}

// peerName renders the digit-string endpoint name used throughout the
// fabric description.
func peerName(i int) string {
	return strconv.Itoa(i)
}
